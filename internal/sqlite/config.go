package sqlite

import (
	"net/url"
	"strings"
)

type Config struct {
	file    string
	durable bool
	conns   int
}

type ConfigFunc = func(c *Config)

// WithFile returns a [ConfigFunc] that sets the database file.
func WithFile(file string) ConfigFunc {
	return func(c *Config) {
		c.File(file)
	}
}

func (c *Config) File(file string) {
	file = strings.TrimSpace(file)
	if file == "" {
		panic("file can't be blank")
	}
	if strings.Contains(file, "?") {
		panic("file can't contain ?")
	}
	c.file = file
}

// Durable makes every commit wait for the data to reach the disk. Ignored for in-memory
// journals.
func (c *Config) Durable(durable bool) {
	c.durable = durable
}

func (c *Config) Conns(conns int) {
	if conns < 1 {
		panic("conns can't be < 1")
	}
	c.conns = conns
}

func (c *Config) memory() bool {
	return c.file == memory
}

func (c *Config) uri(name string) string {
	params := url.Values{}
	params.Add("_txlock", "immediate")
	params.Add("_timeout", "5000") // 5s
	params.Add("_foreign_keys", "on")

	if c.memory() {
		params.Add("mode", "memory")
		params.Add("cache", "shared")
		return "file:" + name + "?" + params.Encode()
	}

	params.Add("_journal", "wal")
	params.Add("_cache_size", "-20000") // 20mb
	if c.durable {
		params.Add("_sync", "full")
	} else {
		params.Add("_sync", "normal")
	}

	return c.file + "?" + params.Encode()
}
