// morphsh — interactive shell for the morph engine.
//
// A development tool for exercising shapes, tags, and dispatch sets
// without writing Go: define tags and shapes, freeze, then morph and
// resolve structures interactively.
//
//	tag color
//	tag color.red = "red"
//	shape point2d = {x: num, y: num}
//	shape user = {name: text, age: num = 0}
//	overload draw point2d
//	overload draw point3d strong
//	freeze
//	morph user {name="Alice"}
//	resolve draw {x=5, y=10}
//
// The input syntax here is a convenience of this tool, not part of the
// library: the engine itself consumes structures built by a host.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	morph "github.com/morphlang/morph"
)

const (
	appName     = "morphsh"
	historyFile = ".morphsh_history"
	prompt      = "==> "
)

var banner = "morph shell\nCtrl+C cancels input, Ctrl+D exits. Type :help for commands."

const helpText = `
commands:
  tag <path>[ = <literal>]          declare a tag (dotted path)
  shape <name> = { ... }[!]         declare a shape ('!' rejects extras)
  overload <set> <shape> [strong|weak]
                                    add a dispatch candidate
  freeze                            finalize definitions, build the engine
  morph <shape> <structure>         morph a structure to a shape
  resolve <set> <structure>         pick the best overload
  call <set> <structure>            resolve + morph in one step
  score <shape> <structure>         show the specificity tuple
  describe <shape>                  introspection view
  schema <shape>                    JSON Schema export
  shapes | tags | sets              list definitions
  reset                             discard everything and start over
  :help | :quit

field spec syntax inside shapes:
  name: num                         named, typed
  num [min=0, max=255] *3           guards and cardinality
  dist: num <cm>                    required unit
  p: point2d | num                  union, tried left to right
  age: num = 0                      default
`

func red(s string) string   { return "\x1b[31m" + s + "\x1b[0m" }
func green(s string) string { return "\x1b[32m" + s + "\x1b[0m" }
func blue(s string) string  { return "\x1b[94m" + s + "\x1b[0m" }

// session holds the builder state before freeze and the engine after.
type session struct {
	tags   *morph.Hierarchy
	shapes *morph.Registry
	sets   map[string]*morph.DispatchSet
	order  []string
	engine *morph.Engine
}

func newSession() *session {
	return &session{
		tags:   morph.NewHierarchy(),
		shapes: morph.NewRegistry(),
		sets:   map[string]*morph.DispatchSet{},
	}
}

func main() {
	fmt.Println(banner)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	ses := newSession()
	for {
		line, err := ln.Prompt(prompt)
		if err != nil { // io.EOF or liner.ErrPromptAborted
			fmt.Println()
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)
		if line == ":quit" || line == ":q" {
			return
		}
		if line == ":help" || line == ":h" {
			fmt.Print(helpText)
			continue
		}
		if out, err := ses.exec(line); err != nil {
			fmt.Println(red(morph.FormatFailure(err)))
		} else if out != "" {
			fmt.Println(blue(out))
		}
	}
}

func (s *session) exec(line string) (string, error) {
	cmd, rest := splitWord(line)
	switch cmd {
	case "tag":
		return s.cmdTag(rest)
	case "shape":
		return s.cmdShape(rest)
	case "overload":
		return s.cmdOverload(rest)
	case "freeze":
		return s.cmdFreeze()
	case "morph":
		return s.cmdMorph(rest)
	case "resolve":
		return s.cmdResolve(rest)
	case "call":
		return s.cmdCall(rest)
	case "score":
		return s.cmdScore(rest)
	case "describe":
		return s.cmdDescribe(rest)
	case "schema":
		return s.cmdSchema(rest)
	case "shapes":
		return strings.Join(s.shapes.Names(), "\n"), nil
	case "tags":
		return s.listTags(), nil
	case "sets":
		return strings.Join(s.order, "\n"), nil
	case "reset":
		*s = *newSession()
		return green("cleared"), nil
	default:
		return "", fmt.Errorf("unknown command %q (:help lists commands)", cmd)
	}
}

func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}

// -----------------------------------------------------------------------------
// definition commands
// -----------------------------------------------------------------------------

func (s *session) cmdTag(rest string) (string, error) {
	if s.engine != nil {
		return "", fmt.Errorf("already frozen; use reset to start over")
	}
	pathPart, litPart, hasLit := strings.Cut(rest, "=")
	path := strings.Split(strings.TrimSpace(pathPart), ".")
	var lit *morph.Value
	if hasLit {
		p := newParser(strings.TrimSpace(litPart))
		p.tags = s.tags
		v, err := p.parseValue()
		if err != nil {
			return "", err
		}
		lit = &v
	}
	id, err := s.tags.Insert(path, lit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("tag %s (#%d)", s.tags.Path(id), id), nil
}

func (s *session) cmdShape(rest string) (string, error) {
	if s.engine != nil {
		return "", fmt.Errorf("already frozen; use reset to start over")
	}
	name, body, ok := strings.Cut(rest, "=")
	if !ok {
		return "", fmt.Errorf("usage: shape <name> = { ... }")
	}
	p := newParser(strings.TrimSpace(body))
	p.tags = s.tags
	shape, err := p.parseShape(strings.TrimSpace(name))
	if err != nil {
		return "", err
	}
	if err := s.shapes.Register(shape); err != nil {
		return "", err
	}
	return "shape " + shape.Name, nil
}

func (s *session) cmdOverload(rest string) (string, error) {
	parts := strings.Fields(rest)
	if len(parts) < 2 {
		return "", fmt.Errorf("usage: overload <set> <shape> [strong|weak]")
	}
	setName, shapeName := parts[0], parts[1]
	strength := morph.Normal
	if len(parts) > 2 {
		switch parts[2] {
		case "strong":
			strength = morph.Strong
		case "weak":
			strength = morph.Weak
		default:
			return "", fmt.Errorf("strength must be strong or weak")
		}
	}
	shape, err := s.shapes.Lookup(shapeName)
	if err != nil {
		return "", err
	}
	set, ok := s.sets[setName]
	if !ok {
		set = morph.NewDispatchSet(setName)
		s.sets[setName] = set
		s.order = append(s.order, setName)
	}
	if err := set.Add(shape, strength, nil); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s: %d candidate(s)", setName, len(set.Candidates())), nil
}

func (s *session) cmdFreeze() (string, error) {
	if s.engine != nil {
		return "already frozen", nil
	}
	if err := s.tags.Freeze(); err != nil {
		return "", err
	}
	if err := s.shapes.Freeze(); err != nil {
		return "", err
	}
	eng, err := morph.NewEngine(s.shapes, s.tags, nil)
	if err != nil {
		return "", err
	}
	s.engine = eng
	return green("frozen, build " + s.shapes.BuildID().String()), nil
}

// -----------------------------------------------------------------------------
// evaluation commands
// -----------------------------------------------------------------------------

func (s *session) ready() error {
	if s.engine == nil {
		return fmt.Errorf("not frozen yet; run freeze first")
	}
	return nil
}

func (s *session) parseInput(rest string) (*morph.ShapeDef, *morph.Structure, error) {
	name, structPart := splitWord(rest)
	shape, err := s.shapes.Lookup(name)
	if err != nil {
		return nil, nil, err
	}
	p := newParser(structPart)
	p.tags = s.tags
	st, err := p.parseStructure()
	if err != nil {
		return nil, nil, err
	}
	return shape, st, nil
}

func (s *session) cmdMorph(rest string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	shape, input, err := s.parseInput(rest)
	if err != nil {
		return "", err
	}
	out, err := s.engine.Morph(input, shape)
	if err != nil {
		return "", err
	}
	return s.engine.FormatStructure(out), nil
}

func (s *session) cmdScore(rest string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	shape, input, err := s.parseInput(rest)
	if err != nil {
		return "", err
	}
	sc, ok := s.engine.Score(input, shape, morph.Normal)
	if !ok {
		return "no match", nil
	}
	return sc.String(), nil
}

func (s *session) setAndInput(rest string) (*morph.DispatchSet, *morph.Structure, error) {
	name, structPart := splitWord(rest)
	set, ok := s.sets[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown dispatch set %q", name)
	}
	p := newParser(structPart)
	p.tags = s.tags
	st, err := p.parseStructure()
	if err != nil {
		return nil, nil, err
	}
	return set, st, nil
}

func (s *session) cmdResolve(rest string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	set, input, err := s.setAndInput(rest)
	if err != nil {
		return "", err
	}
	c, err := s.engine.Resolve(input, set)
	if err != nil {
		return "", err
	}
	return s.engine.FormatShape(c.Shape), nil
}

func (s *session) cmdCall(rest string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	set, input, err := s.setAndInput(rest)
	if err != nil {
		return "", err
	}
	out, err := s.engine.Call(input, set)
	if err != nil {
		return "", err
	}
	return s.engine.FormatValue(out), nil
}

func (s *session) cmdDescribe(rest string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	shape, err := s.shapes.Lookup(strings.TrimSpace(rest))
	if err != nil {
		return "", err
	}
	return s.engine.DescribeJSON(shape)
}

func (s *session) cmdSchema(rest string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	shape, err := s.shapes.Lookup(strings.TrimSpace(rest))
	if err != nil {
		return "", err
	}
	return marshalIndent(s.engine.ShapeSchema(shape))
}

func (s *session) listTags() string {
	var b strings.Builder
	var walk func(id morph.TagID, depth int)
	walk = func(id morph.TagID, depth int) {
		fmt.Fprintf(&b, "%s%s", strings.Repeat("  ", depth), s.tags.Name(id))
		if v, ok := s.tags.ValueOf(id); ok {
			fmt.Fprintf(&b, " = %s", morph.FormatValue(v))
		}
		b.WriteByte('\n')
		for _, c := range s.tags.Children(id) {
			walk(c, depth+1)
		}
	}
	for _, r := range s.tags.Roots() {
		walk(r, 0)
	}
	return strings.TrimRight(b.String(), "\n")
}

func marshalIndent(v map[string]any) (string, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
