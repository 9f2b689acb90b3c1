package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"bloomd/pkg/filter"
	"bloomd/pkg/registry"
)

// Registry is what the executor needs from the filter registry.
type Registry interface {
	Defaults() filter.Config
	Create(name string, cfg filter.Config) error
	Drop(name string) error
	Close(name string) error
	Clear(name string) error
	Flush(name string) error
	FlushAll(ctx context.Context) error
	Set(name string, keys ...string) ([]bool, error)
	Check(name string, keys ...string) ([]bool, error)
	List(prefix string) []string
	Info(name string) (filter.Stats, error)
}

// Executor turns one protocol line into response lines. It holds no state
// of its own and is safe for concurrent use.
type Executor struct {
	reg Registry
}

func NewExecutor(reg Registry) *Executor {
	return &Executor{reg: reg}
}

// Execute runs line and returns the response lines without terminators.
func (e *Executor) Execute(ctx context.Context, line string) []string {
	line = strings.TrimSuffix(line, "\r")
	word, args, _ := strings.Cut(line, " ")

	cmd, ok := aliases[word]
	if !ok {
		return clientError(errCmdNotSupported)
	}

	switch cmd {
	case cmdCheck:
		return e.keyCmd(args, e.reg.Check)
	case cmdSet:
		return e.keyCmd(args, e.reg.Set)
	case cmdMulti:
		return e.multiKeyCmd(args, e.reg.Check)
	case cmdBulk:
		return e.multiKeyCmd(args, e.reg.Set)
	case cmdCreate:
		return e.create(args)
	case cmdDrop:
		return e.filterCmd(args, e.reg.Drop)
	case cmdClose:
		return e.filterCmd(args, e.reg.Close)
	case cmdClear:
		return e.filterCmd(args, e.reg.Clear)
	case cmdFlush:
		if args == "" {
			return e.flushAll(ctx)
		}
		return e.filterCmd(args, e.reg.Flush)
	case cmdList:
		return e.list(args)
	case cmdInfo:
		return e.info(args)
	}
	return clientError(errCmdNotSupported)
}

type keysFunc func(name string, keys ...string) ([]bool, error)

// keyCmd handles check and set. Everything after the name is the key.
func (e *Executor) keyCmd(args string, fn keysFunc) []string {
	name, key, _ := strings.Cut(args, " ")
	if name == "" || key == "" {
		return clientError(errFilterKeyNeeded)
	}
	res, err := fn(name, key)
	if err != nil {
		return e.failure(name, err)
	}
	return single(yesNo(res))
}

// multiKeyCmd handles multi and bulk as one batch.
func (e *Executor) multiKeyCmd(args string, fn keysFunc) []string {
	name, rest, _ := strings.Cut(args, " ")
	keys := strings.Fields(rest)
	if name == "" || len(keys) == 0 {
		return clientError(errFilterKeyNeeded)
	}
	res, err := fn(name, keys...)
	if err != nil {
		return e.failure(name, err)
	}
	return single(yesNo(res))
}

func (e *Executor) create(args string) []string {
	if args == "" {
		return clientError(errFilterNeeded)
	}
	name, opts, hasOpts := strings.Cut(args, " ")
	if !filter.ValidName(name) {
		return clientError(errBadFilterName)
	}

	cfg := e.reg.Defaults()
	if hasOpts {
		var err error
		if cfg, err = parseCreateOptions(cfg, opts); err != nil {
			return clientError(errBadArgs)
		}
	}

	err := e.reg.Create(name, cfg)
	switch {
	case err == nil:
		return single(respDone)
	case errors.Is(err, registry.ErrExists):
		return single(respExists)
	case errors.Is(err, registry.ErrDeleteInProgress):
		return single(respDeleting)
	case errors.Is(err, filter.ErrBadName):
		return clientError(errBadFilterName)
	}
	return e.failure(name, err)
}

var errBadOption = errors.New("bad create option")

// parseCreateOptions applies capacity=N, prob=P, in_memory and in_memory=0|1
// on top of cfg.
func parseCreateOptions(cfg filter.Config, opts string) (filter.Config, error) {
	for _, opt := range strings.Fields(opts) {
		key, val, hasVal := strings.Cut(opt, "=")
		switch {
		case key == "in_memory" && !hasVal:
			cfg.InMemory = true
		case key == "in_memory":
			switch val {
			case "0":
				cfg.InMemory = false
			case "1":
				cfg.InMemory = true
			default:
				return cfg, fmt.Errorf("%w: %s", errBadOption, opt)
			}
		case key == "capacity" && hasVal:
			n, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return cfg, fmt.Errorf("%w: %s", errBadOption, opt)
			}
			cfg.Params.InitialCapacity = n
		case key == "prob" && hasVal:
			p, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return cfg, fmt.Errorf("%w: %s", errBadOption, opt)
			}
			cfg.Params.Probability = p
		default:
			return cfg, fmt.Errorf("%w: %s", errBadOption, opt)
		}
	}

	if cfg.Params.InitialCapacity <= 10000 {
		return cfg, fmt.Errorf("%w: capacity must exceed 10000", errBadOption)
	}
	if p := cfg.Params.Probability; p <= 0 || p >= 0.1 {
		return cfg, fmt.Errorf("%w: probability must be in (0, 0.1)", errBadOption)
	}
	return cfg, nil
}

// filterCmd handles commands taking exactly one filter name.
func (e *Executor) filterCmd(args string, fn func(name string) error) []string {
	if args == "" {
		return clientError(errFilterNeeded)
	}
	if strings.Contains(args, " ") {
		return clientError(errUnexpectedArgs)
	}
	if err := fn(args); err != nil {
		return e.failure(args, err)
	}
	return single(respDone)
}

// flushAll ignores per-filter failures, filters may be dropped meanwhile.
func (e *Executor) flushAll(ctx context.Context) []string {
	if err := e.reg.FlushAll(ctx); err != nil {
		slog.Warn("flush of all filters incomplete", "error", err)
	}
	return single(respDone)
}

func (e *Executor) list(prefix string) []string {
	names := e.reg.List(strings.TrimSpace(prefix))
	out := make([]string, 0, len(names)+2)
	out = append(out, respStart)
	out = append(out, names...)
	return append(out, respEnd)
}

func (e *Executor) info(args string) []string {
	if args == "" {
		return clientError(errFilterNeeded)
	}
	if strings.Contains(args, " ") {
		return clientError(errUnexpectedArgs)
	}

	st, err := e.reg.Info(args)
	if err != nil {
		return e.failure(args, err)
	}

	inMemory := 0
	if st.InMemory {
		inMemory = 1
	}
	return []string{
		respStart,
		fmt.Sprintf("capacity %d", st.Capacity),
		fmt.Sprintf("checks %d", st.Checks()),
		fmt.Sprintf("check_hits %d", st.CheckHits),
		fmt.Sprintf("check_misses %d", st.CheckMisses),
		fmt.Sprintf("in_memory %d", inMemory),
		fmt.Sprintf("page_ins %d", st.PageIns),
		fmt.Sprintf("page_outs %d", st.PageOuts),
		fmt.Sprintf("probability %f", st.Probability),
		fmt.Sprintf("sets %d", st.Sets()),
		fmt.Sprintf("set_hits %d", st.SetHits),
		fmt.Sprintf("set_misses %d", st.SetMisses),
		fmt.Sprintf("size %d", st.Size),
		fmt.Sprintf("storage %d", st.Bytes),
		respEnd,
	}
}

// failure formats errors coming back from the registry.
func (e *Executor) failure(name string, err error) []string {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return single(respNotExist)
	case errors.Is(err, registry.ErrNotProxied):
		return single(respNotProxied)
	case errors.Is(err, registry.ErrDeleteInProgress):
		return single(respDeleting)
	}
	slog.Error("command failed", "filter", name, "error", err)
	return single(respInternalError)
}

func yesNo(res []bool) string {
	var b strings.Builder
	for i, ok := range res {
		if i > 0 {
			b.WriteByte(' ')
		}
		if ok {
			b.WriteString(respYes)
		} else {
			b.WriteString(respNo)
		}
	}
	return b.String()
}
