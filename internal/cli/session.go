package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/persistence/middleware"
)

// SessionAdmin is the part of the engine the session commands use.
type SessionAdmin interface {
	Session(ctx context.Context, userID string) (*domain.Session, error)
	ResetSession(ctx context.Context, userID string) error
	Sessions(ctx context.Context) ([]string, error)
}

// ListSessions prints the ids of stored sessions.
func ListSessions(ctx context.Context, eng SessionAdmin, w io.Writer) error {
	ids, err := eng.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("error listing sessions: %w", err)
	}
	if len(ids) == 0 {
		fmt.Fprintln(w, "No active sessions found.")
		return nil
	}
	fmt.Fprintln(w, "Active Sessions:")
	for _, id := range ids {
		fmt.Fprintln(w, "- "+id)
	}
	return nil
}

// InspectSession prints a session as indented JSON, masked by redactor.
func InspectSession(ctx context.Context, eng SessionAdmin, redactor *middleware.Redactor, userID string, w io.Writer) error {
	sess, err := eng.Session(ctx, userID)
	if err != nil {
		return fmt.Errorf("error loading session '%s': %w", userID, err)
	}
	data, err := json.MarshalIndent(redactor.Session(sess), "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling session: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// RemoveSession deletes a session. Deleting a missing session is not an error.
func RemoveSession(ctx context.Context, eng SessionAdmin, userID string, w io.Writer) error {
	if err := eng.ResetSession(ctx, userID); err != nil {
		return fmt.Errorf("error removing session '%s': %w", userID, err)
	}
	fmt.Fprintf(w, "Session '%s' removed.\n", userID)
	return nil
}
