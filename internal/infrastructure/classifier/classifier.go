// Package classifier assigns risk tiers to proposed shell commands.
//
// Matching is structural: the command is parsed into a shell AST, each
// statement is reduced to its invoked program plus literal argument
// tokens, and rules are evaluated against that view. A dangerous word
// inside a quoted string argument of a benign program does not match,
// while quoting tricks around a genuinely dangerous invocation do not
// hide it.
package classifier

import (
	"path"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/shellpilot/shellpilot/internal/domain"
)

const maxNestingDepth = 8

// Engine is a pure, deterministic classifier: same RawText, same tier.
type Engine struct {
	rules []compiledRule
}

// New compiles the rule tables, loading overrides from rulesFile when it
// exists.
func New(rulesFile string) (*Engine, error) {
	rules, err := loadRules(rulesFile)
	if err != nil {
		return nil, err
	}
	compiled, err := compileRules(rules)
	if err != nil {
		return nil, err
	}
	return &Engine{rules: compiled}, nil
}

// Classify evaluates every statement in rawText independently and returns
// the maximum tier across them. Input the shell grammar cannot parse is
// Blocked: a command we cannot analyze is a command we cannot vouch for.
func (e *Engine) Classify(rawText string) domain.Classification {
	cls := domain.Classification{Tier: domain.TierSafe}

	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(rawText), "")
	if err != nil {
		cls.Tier = domain.TierBlocked
		cls.Reasons = []string{"command could not be parsed"}
		return cls
	}

	for _, stmt := range file.Stmts {
		e.classifyStmt(&cls, rawText, stmt, 0)
	}
	return cls
}

func (e *Engine) classifyStmt(cls *domain.Classification, rawText string, stmt *syntax.Stmt, depth int) {
	if depth > maxNestingDepth {
		raise(cls, domain.TierBlocked, "nesting", "statement nesting exceeds analysis depth")
		return
	}

	e.classifyRedirects(cls, stmt.Redirs)

	switch cmd := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		e.classifyCall(cls, rawText, stmt, cmd, depth)
	case *syntax.BinaryCmd:
		if cmd.Op == syntax.Pipe || cmd.Op == syntax.PipeAll {
			e.classifyPipeline(cls, rawText, stmt, depth)
		} else {
			e.classifyStmt(cls, rawText, cmd.X, depth+1)
			e.classifyStmt(cls, rawText, cmd.Y, depth+1)
		}
	case *syntax.Subshell:
		raise(cls, domain.TierCaution, "subshell", "subshell invocation")
		for _, inner := range cmd.Stmts {
			e.classifyStmt(cls, rawText, inner, depth+1)
		}
	case *syntax.Block:
		for _, inner := range cmd.Stmts {
			e.classifyStmt(cls, rawText, inner, depth+1)
		}
	case *syntax.FuncDecl:
		if funcInvokesItself(cmd) {
			raise(cls, domain.TierBlocked, "fork-bomb", "fork bomb pattern")
			return
		}
		e.classifyStmt(cls, rawText, cmd.Body, depth+1)
	case *syntax.IfClause, *syntax.WhileClause, *syntax.ForClause, *syntax.CaseClause:
		raise(cls, domain.TierCaution, "control-flow", "shell control flow construct")
		e.classifyNested(cls, rawText, stmt.Cmd, depth)
	default:
		// Anything the analyzer does not model is treated like an opaque
		// construct rather than waved through.
		raise(cls, domain.TierCaution, "opaque", "unrecognized shell construct")
	}

	e.classifySubstitutions(cls, rawText, stmt, depth)
	e.matchRawRules(cls, stmtText(rawText, stmt))
}

// classifyNested walks compound bodies (if/while/for/case) and classifies
// every statement found inside them.
func (e *Engine) classifyNested(cls *domain.Classification, rawText string, node syntax.Node, depth int) {
	syntax.Walk(node, func(n syntax.Node) bool {
		if inner, ok := n.(*syntax.Stmt); ok {
			e.classifyStmt(cls, rawText, inner, depth+1)
			return false
		}
		return true
	})
}

// classifyPipeline flattens a pipe chain, classifies each stage, applies
// the long-chain rule, and catches download-into-shell shapes.
func (e *Engine) classifyPipeline(cls *domain.Classification, rawText string, stmt *syntax.Stmt, depth int) {
	stages := flattenPipeline(stmt)
	if len(stages) > 3 {
		raise(cls, domain.TierCaution, "pipe-chain", "pipeline with more than three stages")
	}

	var programs []string
	for _, stage := range stages {
		if call, ok := stage.Cmd.(*syntax.CallExpr); ok {
			if program, _, ok := callTokens(call); ok {
				programs = append(programs, path.Base(program))
			}
		}
		e.classifyStmt(cls, rawText, stage, depth+1)
	}

	if pipesDownloadIntoShell(programs) {
		raise(cls, domain.TierBlocked, "pipe-to-shell", "pipes downloaded content into a shell")
	}
}

func flattenPipeline(stmt *syntax.Stmt) []*syntax.Stmt {
	binary, ok := stmt.Cmd.(*syntax.BinaryCmd)
	if !ok || (binary.Op != syntax.Pipe && binary.Op != syntax.PipeAll) {
		return []*syntax.Stmt{stmt}
	}
	return append(flattenPipeline(binary.X), flattenPipeline(binary.Y)...)
}

var downloaders = map[string]bool{"curl": true, "wget": true, "fetch": true}

func pipesDownloadIntoShell(programs []string) bool {
	sawDownloader := false
	for _, program := range programs {
		if downloaders[program] {
			sawDownloader = true
			continue
		}
		if sawDownloader && shellPrograms[program] {
			return true
		}
	}
	return false
}

var shellPrograms = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true, "ksh": true,
}

// classifyCall evaluates one simple command: builtin structural checks
// first, then the configured rule tables in Blocked → Dangerous → Caution
// order; the first matching layer wins for the statement, and the overall
// classification keeps the maximum across statements.
func (e *Engine) classifyCall(cls *domain.Classification, rawText string, stmt *syntax.Stmt, call *syntax.CallExpr, depth int) {
	program, args, ok := callTokens(call)
	if !ok {
		return // assignment-only statement, e.g. FOO=bar
	}
	base := path.Base(program)

	switch {
	case base == "sudo" || base == "doas":
		// The wrapped command is classified on its own; sudo itself is
		// picked up by the privilege-escalation rule below.
		e.classifyWrapped(cls, rawText, stripWrapperFlags(args), depth)
	case base == "env" || base == "nohup" || base == "nice" || base == "timeout":
		e.classifyWrapped(cls, rawText, stripWrapperFlags(args), depth)
	case shellPrograms[base]:
		raise(cls, domain.TierCaution, "nested-shell", "invokes a second shell")
		if payload := dashCPayload(args); payload != "" {
			nested := e.Classify(payload)
			mergeClassification(cls, nested)
		}
	case base == "rm":
		e.classifyRemove(cls, args)
	case base == "dd":
		for _, arg := range args {
			if strings.HasPrefix(arg, "of=/dev/") && !harmlessDevice(strings.TrimPrefix(arg, "of=")) {
				raise(cls, domain.TierBlocked, "raw-disk-write", "raw write to a block device")
			}
		}
	}

	e.matchTokenRules(cls, base, args)
}

// classifyWrapped re-runs classification on the command a wrapper such as
// sudo or env carries, so "sudo rm -rf /" ends at Blocked, not merely
// Dangerous.
func (e *Engine) classifyWrapped(cls *domain.Classification, rawText string, wrapped []string, depth int) {
	if len(wrapped) == 0 || depth >= maxNestingDepth {
		return
	}
	nested := e.Classify(strings.Join(wrapped, " "))
	mergeClassification(cls, nested)
}

// stripWrapperFlags drops leading option tokens and VAR=val assignments
// so the wrapped program becomes the first token.
func stripWrapperFlags(args []string) []string {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") || strings.Contains(arg, "=") {
			continue
		}
		return args[i:]
	}
	return nil
}

func dashCPayload(args []string) string {
	for i, arg := range args {
		if arg == "-c" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// classifyRemove separates recursive root deletion (Blocked) from other
// recursive deletes (Dangerous).
func (e *Engine) classifyRemove(cls *domain.Classification, args []string) {
	recursive, force := false, false
	var targets []string
	for _, arg := range args {
		switch {
		case arg == "--recursive":
			recursive = true
		case arg == "--force":
			force = true
		case strings.HasPrefix(arg, "--"):
		case strings.HasPrefix(arg, "-") && len(arg) > 1:
			if strings.ContainsAny(arg, "rR") {
				recursive = true
			}
			if strings.Contains(arg, "f") {
				force = true
			}
		default:
			targets = append(targets, arg)
		}
	}
	if !recursive {
		return
	}
	for _, target := range targets {
		if rootTarget(target) {
			raise(cls, domain.TierBlocked, "rm-root", "recursive deletion of a filesystem root")
			return
		}
	}
	if force {
		raise(cls, domain.TierDangerous, "rm-rf", "recursive forced deletion")
	} else {
		raise(cls, domain.TierCaution, "rm-r", "recursive deletion")
	}
}

func rootTarget(target string) bool {
	switch target {
	case "/", "/*", "~", "~/", "$HOME", "${HOME}":
		return true
	}
	// Single top-level directories such as /etc or /usr, with or without
	// a trailing glob.
	trimmed := strings.TrimSuffix(strings.TrimSuffix(target, "*"), "/")
	if !strings.HasPrefix(trimmed, "/") {
		return false
	}
	return !strings.Contains(strings.TrimPrefix(trimmed, "/"), "/") && trimmed != ""
}

func (e *Engine) classifyRedirects(cls *domain.Classification, redirs []*syntax.Redirect) {
	for _, redir := range redirs {
		if redir.Word == nil {
			continue
		}
		target, _ := wordText(redir.Word)
		switch redir.Op {
		case syntax.RdrOut, syntax.AppOut, syntax.RdrAll, syntax.AppAll:
			switch {
			case blockDevice(target):
				raise(cls, domain.TierBlocked, "redirect-device", "redirects output onto a block device")
			case systemPath(target):
				raise(cls, domain.TierCaution, "redirect-system", "writes into a system path")
			}
		}
	}
}

func (e *Engine) classifySubstitutions(cls *domain.Classification, rawText string, stmt *syntax.Stmt, depth int) {
	syntax.Walk(stmt, func(node syntax.Node) bool {
		if subst, ok := node.(*syntax.CmdSubst); ok {
			raise(cls, domain.TierCaution, "cmd-subst", "command substitution")
			for _, inner := range subst.Stmts {
				e.classifyStmt(cls, rawText, inner, depth+1)
			}
			return false
		}
		return true
	})
}

var blockDeviceRE = regexp.MustCompile(`^/dev/(sd[a-z]|hd[a-z]|nvme\d|vd[a-z]|mmcblk\d|loop\d)`)

func blockDevice(target string) bool {
	return blockDeviceRE.MatchString(target)
}

func harmlessDevice(target string) bool {
	switch target {
	case "/dev/null", "/dev/zero", "/dev/stdout", "/dev/stderr", "/dev/tty":
		return true
	}
	return false
}

var systemPathRE = regexp.MustCompile(`^/(etc|usr|boot|var|lib|bin|sbin)(/|$)`)

func systemPath(target string) bool {
	return systemPathRE.MatchString(target)
}

// matchTokenRules runs the configured tables against one program + args
// view. Layers are already ordered Blocked → Dangerous → Caution; the
// first layer with a match wins for this call.
func (e *Engine) matchTokenRules(cls *domain.Classification, program string, args []string) {
	joined := strings.Join(args, " ")
	var matchedTier domain.RiskTier
	for _, rule := range e.rules {
		if matchedTier != "" && rule.tier != matchedTier {
			continue
		}
		if rule.rawRE != nil && rule.argsRE == nil && len(rule.rule.Programs) == 0 {
			continue // raw-only rules are handled per statement
		}
		if !ruleAppliesToProgram(rule.rule, program) {
			continue
		}
		if rule.argsRE != nil && !rule.argsRE.MatchString(joined) {
			continue
		}
		if matchedTier == "" {
			matchedTier = rule.tier
		}
		raise(cls, rule.tier, rule.rule.Name, rule.rule.Reason)
	}
}

func (e *Engine) matchRawRules(cls *domain.Classification, text string) {
	if text == "" {
		return
	}
	for _, rule := range e.rules {
		if rule.rawRE == nil {
			continue
		}
		if rule.rawRE.MatchString(text) {
			raise(cls, rule.tier, rule.rule.Name, rule.rule.Reason)
		}
	}
}

func ruleAppliesToProgram(rule Rule, program string) bool {
	if len(rule.Programs) == 0 {
		return false
	}
	for _, candidate := range rule.Programs {
		if program == candidate || strings.HasPrefix(program, candidate+".") {
			return true
		}
	}
	return false
}

func funcInvokesItself(decl *syntax.FuncDecl) bool {
	name := decl.Name.Value
	selfCall := false
	syntax.Walk(decl.Body, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if program, _, ok := callTokens(call); ok && program == name {
				selfCall = true
			}
		}
		return true
	})
	return selfCall
}

// callTokens reduces a simple command to its program name and literal
// argument texts. ok is false for assignment-only statements.
func callTokens(call *syntax.CallExpr) (string, []string, bool) {
	if len(call.Args) == 0 {
		return "", nil, false
	}
	program, _ := wordText(call.Args[0])
	if program == "" {
		return "", nil, false
	}
	args := make([]string, 0, len(call.Args)-1)
	for _, word := range call.Args[1:] {
		text, _ := wordText(word)
		args = append(args, text)
	}
	return program, args, true
}

// wordText flattens a word into its literal text. Parameter expansions
// keep their $NAME spelling so rules can match targets like $HOME;
// command substitutions collapse to a marker and are classified
// separately.
func wordText(word *syntax.Word) (string, bool) {
	var builder strings.Builder
	literal := true
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			builder.WriteString(p.Value)
		case *syntax.SglQuoted:
			builder.WriteString(p.Value)
		case *syntax.DblQuoted:
			inner, ok := partsText(p.Parts)
			if !ok {
				literal = false
			}
			builder.WriteString(inner)
		case *syntax.ParamExp:
			builder.WriteString("$" + p.Param.Value)
			literal = false
		case *syntax.CmdSubst:
			builder.WriteString("$(...)")
			literal = false
		default:
			builder.WriteString("?")
			literal = false
		}
	}
	return builder.String(), literal
}

func partsText(parts []syntax.WordPart) (string, bool) {
	var builder strings.Builder
	literal := true
	for _, part := range parts {
		switch p := part.(type) {
		case *syntax.Lit:
			builder.WriteString(p.Value)
		case *syntax.ParamExp:
			builder.WriteString("$" + p.Param.Value)
			literal = false
		default:
			builder.WriteString("?")
			literal = false
		}
	}
	return builder.String(), literal
}

func stmtText(rawText string, stmt *syntax.Stmt) string {
	start := stmt.Pos().Offset()
	end := stmt.End().Offset()
	if start >= uint(len(rawText)) || end > uint(len(rawText)) || start >= end {
		return ""
	}
	return rawText[start:end]
}

func raise(cls *domain.Classification, tier domain.RiskTier, ruleName string, reason string) {
	if domain.MoreSevere(tier, cls.Tier) {
		cls.Tier = tier
	}
	for _, existing := range cls.MatchedRules {
		if existing == ruleName {
			return
		}
	}
	cls.MatchedRules = append(cls.MatchedRules, ruleName)
	cls.Reasons = append(cls.Reasons, reason)
}

func mergeClassification(cls *domain.Classification, nested domain.Classification) {
	if domain.MoreSevere(nested.Tier, cls.Tier) {
		cls.Tier = nested.Tier
	}
	for i, ruleName := range nested.MatchedRules {
		reason := ""
		if i < len(nested.Reasons) {
			reason = nested.Reasons[i]
		}
		raise(cls, nested.Tier, ruleName, reason)
	}
}
