package astrobot

// Version is the release of astrobot, overridden at build time with
// -ldflags "-X github.com/jammysunshine/astro-whatsapp-bot.Version=...".
var Version = "dev"
