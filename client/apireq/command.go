package apireq

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Command builds a request for a kubo RPC command. Arguments are sent as
// repeated `arg` parameters and options as named parameters, the encoding the
// daemon's command handler expects.
//
// Builder methods return a modified copy, so a Command can be shared and
// specialised without locking.
type Command struct {
	name   string
	method string
	args   []string
	opts   []option
	err    error
}

type option struct {
	key   string
	value string
}

// NewCommand returns a Command for `name`, e.g. "version" or "pin/add".
func NewCommand(name string, args ...string) Command {
	return Command{
		name: name,
		args: append([]string(nil), args...),
	}
}

// Arguments appends positional arguments.
func (c Command) Arguments(args ...string) Command {
	c.args = append(append([]string(nil), c.args...), args...)
	return c
}

// Option adds a named option. Values may be strings, byte slices, booleans,
// numbers or fmt.Stringers; anything else marks the command invalid.
func (c Command) Option(key string, value interface{}) Command {
	var s string
	switch v := value.(type) {
	case bool:
		s = strconv.FormatBool(v)
	case string:
		s = v
	case []byte:
		s = string(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		s = fmt.Sprint(v)
	case fmt.Stringer:
		s = v.String()
	default:
		if c.err == nil {
			c.err = &InvalidRequestError{
				Path:   CommandPath(c.name),
				Reason: fmt.Sprintf("option %q has unsupported type %T", key, value),
			}
		}
		return c
	}
	c.opts = append(append([]option(nil), c.opts...), option{key: key, value: s})
	return c
}

// WithMethod overrides the HTTP method. The RPC API only serves POST, so
// this is mostly useful against proxies and test servers.
func (c Command) WithMethod(method string) Command {
	c.method = method
	return c
}

func (c Command) Method() string {
	if c.method == "" {
		return http.MethodPost
	}
	return c.method
}

func (c Command) Path() string {
	return CommandPath(c.name)
}

func (c Command) Query() url.Values {
	values := make(url.Values, len(c.opts)+1)
	for _, arg := range c.args {
		values.Add("arg", arg)
	}
	for _, o := range c.opts {
		values.Add(o.key, o.value)
	}
	return values
}

func (c Command) Validate() error {
	if c.err != nil {
		return c.err
	}
	if c.name == "" {
		return &InvalidRequestError{Reason: "empty command name"}
	}
	for _, o := range c.opts {
		if o.key == "" {
			return &InvalidRequestError{Path: c.Path(), Reason: "option with empty name"}
		}
	}
	return nil
}

var (
	_ Request   = Command{}
	_ Validator = Command{}
)
