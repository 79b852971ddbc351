package config

import (
	"github.com/spf13/pflag"
)

// RegisterFlags defines the command-line flags that override the config.
// Flag defaults are only shown in help; Apply copies flags the user set.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "location of the config file (default "+DefaultFile+")")
	fs.String("host", d.Host, "host for the web console to listen on")
	fs.Int("port", d.Port, "port for the web console to listen on")
	fs.String("webpass", "", "password for logging into the web console")
	fs.String("dir", "", "working directory of the program")
	fs.Bool("start", d.Start, "start the program at startup")
	fs.Bool("no-start", false, "start the program on first demand")
	fs.Bool("allow-restart", d.AllowRestart, "allow clients to restart the program")
	fs.Bool("auto-restart", d.AutoRestart, "restart the program after it exits")
	fs.Bool("clear-on-restart", d.ClearOnRestart, "drop the scrollback when the program restarts")
	fs.Int("scrollback", d.Scrollback, "scrollback replayed to new clients, in bytes")
	fs.String("db", "", "run history database path (empty disables history)")
	fs.String("log-level", d.LogLevel, "log level (trace, debug, info, warn, error)")
	fs.Bool("log-json", false, "log JSON lines instead of console output")
	fs.Bool("debug", false, "enable debug logging")
	fs.Bool("dry", false, "print the resolved config and exit")
}

// ApplyFlags copies every flag the user set on fs into c.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	set := func(name string, apply func() error) {
		if err == nil && fs.Changed(name) {
			err = apply()
		}
	}

	set("host", func() (e error) { c.Host, e = fs.GetString("host"); return })
	set("port", func() (e error) { c.Port, e = fs.GetInt("port"); return })
	set("webpass", func() error {
		v, e := fs.GetString("webpass")
		c.Pass = Secret(v)
		return e
	})
	set("dir", func() (e error) { c.Dir, e = fs.GetString("dir"); return })
	set("start", func() (e error) { c.Start, e = fs.GetBool("start"); return })
	set("no-start", func() error {
		v, e := fs.GetBool("no-start")
		if v {
			c.Start = false
		}
		return e
	})
	set("allow-restart", func() (e error) { c.AllowRestart, e = fs.GetBool("allow-restart"); return })
	set("auto-restart", func() (e error) { c.AutoRestart, e = fs.GetBool("auto-restart"); return })
	set("clear-on-restart", func() (e error) { c.ClearOnRestart, e = fs.GetBool("clear-on-restart"); return })
	set("scrollback", func() (e error) { c.Scrollback, e = fs.GetInt("scrollback"); return })
	set("db", func() (e error) { c.DB, e = fs.GetString("db"); return })
	set("log-level", func() (e error) { c.LogLevel, e = fs.GetString("log-level"); return })
	set("log-json", func() error {
		v, e := fs.GetBool("log-json")
		c.LogConsole = !v
		return e
	})
	set("debug", func() (e error) { c.Debug, e = fs.GetBool("debug"); return })
	return err
}
