/*
Package session implements per-user session access for the conversation engine.

Manager.Update is the loadForUpdate primitive: it serializes every update of a
user behind a reference-counted per-key mutex (and, optionally, a distributed
lock shared by replicas), reads the stored session, lets the caller compute the
next one and writes it back with compare-and-set. A lost race re-runs the whole
read/compute/write cycle once before giving up with domain.ErrSessionConflict.
*/
package session
