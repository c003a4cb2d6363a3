package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// env resolves keys against the explicit map, then the process environment, then the
// dotenv file.
type env struct {
	explicit map[string]string
	system   bool
	dotenv   map[string]string
}

func (e env) get(key string) (string, bool) {
	if v, ok := e.explicit[key]; ok {
		return v, true
	}
	if e.system {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
	}
	v, ok := e.dotenv[key]
	return v, ok
}

// all flattens the layers with the same precedence as get.
func (e env) all() map[string]string {
	out := make(map[string]string, len(e.dotenv)+len(e.explicit))
	for k, v := range e.dotenv {
		out[k] = v
	}
	if e.system {
		for _, entry := range os.Environ() {
			k, v, ok := strings.Cut(entry, "=")
			if k = strings.TrimSpace(k); ok && k != "" {
				out[k] = v
			}
		}
	}
	for k, v := range e.explicit {
		out[k] = v
	}
	return out
}

func (e env) trimmed(key string) (string, bool) {
	v, ok := e.get(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e env) str(key, fallback string) string {
	if v, ok := e.trimmed(key); ok {
		return v
	}
	return fallback
}

func (e env) duration(key string, fallback time.Duration) time.Duration {
	if v, ok := e.trimmed(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func (e env) integer(key string, fallback int) int {
	if v, ok := e.trimmed(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (e env) flag(key string, fallback bool) bool {
	v, ok := e.trimmed(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return fallback
}

// list splits a comma separated value, dropping blanks.
func (e env) list(key string) []string {
	out := []string{}
	v, ok := e.trimmed(key)
	if !ok {
		return out
	}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// groups parses "men=a|b,women=c" into {"men": [a b], "women": [c]}.
func (e env) groups(key string) map[string][]string {
	out := make(map[string][]string)
	for _, entry := range e.list(key) {
		name, ids, ok := strings.Cut(entry, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if !ok || name == "" {
			continue
		}
		for _, id := range strings.Split(ids, "|") {
			if id = strings.TrimSpace(id); id != "" {
				out[name] = append(out[name], id)
			}
		}
	}
	return out
}

// readDotEnv parses KEY=value lines, tolerating "export" prefixes and quoted values. A
// missing file is not an error.
func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if key = strings.TrimSpace(key); !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}
