// Package script embeds the sandboxed Lua VM that interprets card
// triggers. It exposes exactly the three operations SPEC_FULL.md §4.6
// names: loading scripts from disk, indexing their exported functions by
// namespace, and invoking a qualified function with a per-call context.
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"duelserver/internal/apperr"
	"duelserver/internal/domain"
)

// namespace is one of the four qualified-name prefixes a card trigger may
// reference.
type namespace string

const (
	nsCore     namespace = "core"
	nsCards    namespace = "cards"
	nsEffects  namespace = "effects"
	nsTriggers namespace = "triggers"
)

var scriptDirs = []namespace{nsCore, nsCards, nsEffects, nsTriggers}

// Host wraps a single *lua.LState. The VM is not reentrant, so every call
// into it — loading, indexing, invoking — is serialized by mu. This is the
// one rendezvous point in an otherwise multi-threaded server.
type Host struct {
	mu     sync.Mutex
	L      *lua.LState
	logger *zap.Logger

	funcs map[namespace]map[string]*lua.LFunction
}

// NewHost constructs a Host with a fresh Lua state and empty namespace
// tables. Call LoadScripts then SetGlobals before CallFunctionCtx.
func NewHost(logger *zap.Logger) *Host {
	return &Host{
		L:      lua.NewState(),
		logger: logger,
		funcs: map[namespace]map[string]*lua.LFunction{
			nsCore: {}, nsCards: {}, nsEffects: {}, nsTriggers: {},
		},
	}
}

// Close releases the underlying Lua state.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.L.Close()
}

// LoadScripts scans root's immediate subdirectories named core, cards,
// effects and triggers, loading every *.lua file as a top-level module. A
// script that fails to parse is logged and skipped, not fatal to the rest
// of the load — one bad card should not take down the whole catalog.
func (h *Host) LoadScripts(root string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, dir := range scriptDirs {
		dirPath := filepath.Join(root, string(dir))
		entries, err := os.ReadDir(dirPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("script: reading %s: %w", dirPath, err)
		}

		h.logger.Debug("reading scripts from directory", zap.String("dir", string(dir)))
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
				continue
			}
			path := filepath.Join(dirPath, entry.Name())
			h.logger.Debug("loading script", zap.String("file", entry.Name()))
			if err := h.L.DoFile(path); err != nil {
				h.logger.Error("couldn't load script", zap.String("file", entry.Name()), zap.Error(err))
			}
		}
	}
	return nil
}

// SetGlobals reads every *.txt manifest file directly under root. Each
// line names a global Lua function; the manifest's filename decides which
// namespace map it is indexed into, by substring match on "core", "card",
// "effect" or "trigger".
func (h *Host) SetGlobals(root string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("script: reading %s: %w", root, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".txt" {
			continue
		}
		ns, ok := namespaceForManifest(entry.Name())
		if !ok {
			continue
		}

		path := filepath.Join(root, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("script: reading manifest %s: %w", path, err)
		}

		for _, line := range strings.Split(string(data), "\n") {
			name := strings.TrimSpace(line)
			if name == "" {
				continue
			}
			fn, ok := h.L.GetGlobal(name).(*lua.LFunction)
			if !ok {
				h.logger.Error("unable to set function", zap.String("name", name))
				continue
			}
			h.logger.Debug("indexing function", zap.String("namespace", string(ns)), zap.String("name", name))
			h.funcs[ns][name] = fn
		}
	}
	return nil
}

func namespaceForManifest(filename string) (namespace, bool) {
	switch {
	case strings.Contains(filename, "core"):
		return nsCore, true
	case strings.Contains(filename, "card"):
		return nsCards, true
	case strings.Contains(filename, "effect"):
		return nsEffects, true
	case strings.Contains(filename, "trigger"):
		return nsTriggers, true
	default:
		return "", false
	}
}

// CallFunctionCtx splits qualifiedName at the first colon into namespace
// and function, looks up the function in that namespace's map, invokes it
// with ctx marshaled to a native Lua table, and decodes the single return
// value as an ordered sequence of domain.GameAction.
func (h *Host) CallFunctionCtx(qualifiedName string, ctx Context) ([]domain.GameAction, error) {
	ns, fnName, err := splitQualifiedName(qualifiedName)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	start := time.Now()
	defer func() {
		h.logger.Debug("script invoked", zap.String("function", qualifiedName), zap.Duration("duration", time.Since(start)))
	}()

	fn, ok := h.funcs[ns][fnName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrFunctionNotFound, qualifiedName)
	}

	table := ctx.toTable(h.L)
	if err := h.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, table); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrFunctionNotCallable, qualifiedName, err)
	}

	ret := h.L.Get(-1)
	h.L.Pop(1)

	actions, err := parseGameActions(ret)
	if err != nil {
		return nil, err
	}
	return actions, nil
}

func splitQualifiedName(qualifiedName string) (namespace, string, error) {
	idx := strings.IndexByte(qualifiedName, ':')
	if idx < 0 {
		return "", "", fmt.Errorf("%w: malformed qualified name %q", apperr.ErrFunctionNotFound, qualifiedName)
	}
	ns := namespace(qualifiedName[:idx])
	switch ns {
	case nsCore, nsCards, nsEffects, nsTriggers:
		return ns, qualifiedName[idx+1:], nil
	default:
		return "", "", fmt.Errorf("%w: unknown namespace in %q", apperr.ErrFunctionNotFound, qualifiedName)
	}
}

func errInvalidGameActions(reason string) error {
	return fmt.Errorf("%w: %s", apperr.ErrInvalidGameActions, reason)
}
