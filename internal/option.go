package internal

import (
	"io"
	"os"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	stdin  io.Reader
	stdout io.Writer
	logOut io.Writer
}

func newApplication(opts []Option) *application {
	app := &application{stdin: os.Stdin, stdout: os.Stdout, logOut: os.Stderr}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithIO replaces stdin and stdout, which carry the bridge and MCP protocols.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(a *application) {
		a.stdin, a.stdout = in, out
	}
}

// WithLogOutput redirects logs, which default to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}
