// Package command turns chat text into typed requests.
//
// Grammar (keywords are case-insensitive, tokens are separated by whitespace):
//
//	deploy <commit> to workload <name> in (Staging|Production) [dry run]
//	(rollback|pause|resume) [rancher] project <id> workload <id> [revision <name>|latest|previous] [dry run]
//	list [rancher] projects
//	list [rancher] project <id> workloads
//	list [rancher] project <id> workload <id> revisions
//	list (github|gitlab) (repos|repositories)
//	list (github|gitlab) <repository> commits
//	list quay (repos|repositories)
package command

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/haloydev/deploybot/internal/constants"
	"github.com/haloydev/deploybot/internal/deploytypes"
	"github.com/haloydev/deploybot/internal/revision"
	"github.com/oklog/ulid"
)

type Kind int

const (
	KindAction Kind = iota
	KindListProjects
	KindListWorkloads
	KindListRevisions
	KindListSourceRepositories
	KindListCommits
	KindListImageRepositories
)

func (k Kind) String() string {
	switch k {
	case KindAction:
		return "action"
	case KindListProjects:
		return "list projects"
	case KindListWorkloads:
		return "list workloads"
	case KindListRevisions:
		return "list revisions"
	case KindListSourceRepositories:
		return "list repositories"
	case KindListCommits:
		return "list commits"
	case KindListImageRepositories:
		return "list image repositories"
	}
	return "unknown"
}

// Command is a parsed chat command. Request is set for every kind; listings
// only fill the actor, the selectors and the id.
type Command struct {
	Kind    Kind
	Request deploytypes.DeploymentRequest
	// Repository is the source repository of a commit listing.
	Repository string
}

const (
	UsageDeploy   = "deploy <commit> to workload <name> in <Staging|Production> [dry run]"
	UsageRollback = "rollback [rancher] project <id> workload <id> <revision <name>|latest|previous> [dry run]"
	UsagePause    = "pause [rancher] project <id> workload <id> [dry run]"
	UsageResume   = "resume [rancher] project <id> workload <id> [dry run]"
	UsageList     = "list [rancher] projects | list [rancher] project <id> workloads | list [rancher] project <id> workload <id> revisions | list github repos | list github <repository> commits | list quay repos"
)

// SyntaxError reports text that does not match any command.
type SyntaxError struct {
	Text   string
	Reason string
	Usage  string
}

func (e *SyntaxError) Error() string {
	msg := fmt.Sprintf("could not understand '%s'", e.Text)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Usage != "" {
		msg += " (usage: " + e.Usage + ")"
	}
	return msg
}

func (e *SyntaxError) Unwrap() error {
	return deploytypes.ErrInvalidRequest
}

const platformKeyword = "rancher"

var (
	commitPattern  = regexp.MustCompile(`^[A-Za-z0-9]{7,}$`)
	hexPattern     = regexp.MustCompile(`^[0-9a-f]+$`)
	namePattern    = regexp.MustCompile(`^[\w-]+$`)
	identPattern   = regexp.MustCompile(`^[\w:-]+$`)
	supportedVerbs = []string{"deploy", "rollback", "pause", "resume", "list"}
)

// Parse reads one command. The returned request carries a fresh id.
func Parse(actor, text string) (Command, error) {
	text = strings.TrimSpace(text)
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return Command{}, &SyntaxError{Text: text, Reason: "empty command", Usage: strings.Join(supportedVerbs, ", ")}
	}

	p := &parser{text: text, tokens: tokens}
	var (
		cmd Command
		err error
	)
	switch verb := strings.ToLower(tokens[0]); verb {
	case "deploy":
		cmd, err = p.parseDeploy()
	case "rollback", "pause", "resume":
		cmd, err = p.parseWorkloadAction(deploytypes.Action(verb))
	case "list":
		cmd, err = p.parseList()
	default:
		err = &SyntaxError{Text: text, Reason: fmt.Sprintf("unknown command '%s'", tokens[0]), Usage: strings.Join(supportedVerbs, ", ")}
	}
	if err != nil {
		return Command{}, err
	}

	cmd.Request.ID = NewRequestID()
	cmd.Request.Actor = actor
	cmd.Request.Text = text
	return cmd, nil
}

// NewRequestID returns a sortable unique id.
func NewRequestID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// NormalizeCommit lower-cases a commit id, checks its shape and truncates it
// to the length used for image tags.
func NormalizeCommit(commit string) (string, error) {
	if !commitPattern.MatchString(commit) {
		return "", fmt.Errorf("%w: commit '%s' must be at least %d letters or digits", deploytypes.ErrInvalidRequest, commit, constants.CommitLength)
	}
	short := strings.ToLower(commit)[:constants.CommitLength]
	if !hexPattern.MatchString(short) {
		return "", fmt.Errorf("%w: commit '%s' is not a hexadecimal id", deploytypes.ErrInvalidRequest, commit)
	}
	return short, nil
}

type parser struct {
	text   string
	tokens []string
	pos    int
}

func (p *parser) peek() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *parser) next() string {
	tok := p.peek()
	if tok != "" {
		p.pos++
	}
	return tok
}

func (p *parser) done() bool {
	return p.pos >= len(p.tokens)
}

func (p *parser) syntaxErr(usage, format string, args ...any) error {
	return &SyntaxError{Text: p.text, Reason: fmt.Sprintf(format, args...), Usage: usage}
}

func (p *parser) keyword(usage, want string) error {
	got := p.next()
	if !strings.EqualFold(got, want) {
		if got == "" {
			return p.syntaxErr(usage, "expected '%s'", want)
		}
		return p.syntaxErr(usage, "expected '%s' but got '%s'", want, got)
	}
	return nil
}

func (p *parser) value(usage, what string, pattern *regexp.Regexp) (string, error) {
	got := p.next()
	if got == "" {
		return "", p.syntaxErr(usage, "missing %s", what)
	}
	if !pattern.MatchString(got) {
		return "", p.syntaxErr(usage, "invalid %s '%s'", what, got)
	}
	return got, nil
}

func (p *parser) skipPlatformKeyword() {
	if strings.EqualFold(p.peek(), platformKeyword) {
		p.pos++
	}
}

// dryRun consumes a trailing "dry run" and fails on anything else.
func (p *parser) dryRun(usage string) (bool, error) {
	if p.done() {
		return false, nil
	}
	if !strings.EqualFold(p.next(), "dry") || !strings.EqualFold(p.next(), "run") || !p.done() {
		return false, p.syntaxErr(usage, "unexpected trailing text")
	}
	return true, nil
}

func (p *parser) parseDeploy() (Command, error) {
	usage := UsageDeploy
	p.next()

	rawCommit := p.next()
	if rawCommit == "" {
		return Command{}, p.syntaxErr(usage, "missing commit")
	}
	commit, err := NormalizeCommit(rawCommit)
	if err != nil {
		return Command{}, err
	}

	if err := p.keyword(usage, "to"); err != nil {
		return Command{}, err
	}
	if err := p.keyword(usage, "workload"); err != nil {
		return Command{}, err
	}
	workload, err := p.value(usage, "workload name", namePattern)
	if err != nil {
		return Command{}, err
	}
	if err := p.keyword(usage, "in"); err != nil {
		return Command{}, err
	}
	rawEnv := p.next()
	if rawEnv == "" {
		return Command{}, p.syntaxErr(usage, "missing environment")
	}
	env, err := deploytypes.ParseEnvironment(rawEnv)
	if err != nil {
		return Command{}, err
	}
	dryRun, err := p.dryRun(usage)
	if err != nil {
		return Command{}, err
	}

	return Command{
		Kind: KindAction,
		Request: deploytypes.DeploymentRequest{
			Action:      deploytypes.ActionDeploy,
			Environment: env,
			Workload:    deploytypes.ByName(workload),
			Commit:      commit,
			DryRun:      dryRun,
		},
	}, nil
}

func (p *parser) parseWorkloadAction(action deploytypes.Action) (Command, error) {
	usage := map[deploytypes.Action]string{
		deploytypes.ActionRollback: UsageRollback,
		deploytypes.ActionPause:    UsagePause,
		deploytypes.ActionResume:   UsageResume,
	}[action]
	p.next()
	p.skipPlatformKeyword()

	if err := p.keyword(usage, "project"); err != nil {
		return Command{}, err
	}
	project, err := p.value(usage, "project id", identPattern)
	if err != nil {
		return Command{}, err
	}
	if err := p.keyword(usage, "workload"); err != nil {
		return Command{}, err
	}
	workload, err := p.value(usage, "workload id", identPattern)
	if err != nil {
		return Command{}, err
	}

	sel, err := p.rollbackSelector(usage)
	if err != nil {
		return Command{}, err
	}
	if action == deploytypes.ActionRollback {
		if err := revision.ValidateSelector(sel); err != nil {
			return Command{}, err
		}
	} else if !sel.IsZero() {
		return Command{}, p.syntaxErr(usage, "%s does not take a revision", action)
	}

	dryRun, err := p.dryRun(usage)
	if err != nil {
		return Command{}, err
	}

	return Command{
		Kind: KindAction,
		Request: deploytypes.DeploymentRequest{
			Action:   action,
			Project:  deploytypes.ByID(project),
			Workload: deploytypes.ByID(workload),
			Rollback: sel,
			DryRun:   dryRun,
		},
	}, nil
}

// rollbackSelector reads the optional revision selector. A bare word that is
// not a keyword is kept as a name without a kind so that validation can
// report it as ambiguous.
func (p *parser) rollbackSelector(usage string) (deploytypes.RollbackSelector, error) {
	tok := p.peek()
	switch strings.ToLower(tok) {
	case "", "dry":
		return deploytypes.RollbackSelector{}, nil
	case string(deploytypes.RollbackLatest), string(deploytypes.RollbackPrevious):
		p.pos++
		return deploytypes.RollbackSelector{Kind: deploytypes.RollbackKind(strings.ToLower(tok))}, nil
	case string(deploytypes.RollbackRevision):
		p.pos++
		name := p.peek()
		if name == "" || strings.EqualFold(name, "dry") {
			return deploytypes.RollbackSelector{Kind: deploytypes.RollbackRevision}, nil
		}
		if !identPattern.MatchString(name) {
			return deploytypes.RollbackSelector{}, p.syntaxErr(usage, "invalid revision name '%s'", name)
		}
		p.pos++
		return deploytypes.RollbackSelector{Kind: deploytypes.RollbackRevision, Name: name}, nil
	default:
		if !identPattern.MatchString(tok) {
			return deploytypes.RollbackSelector{}, p.syntaxErr(usage, "invalid revision name '%s'", tok)
		}
		p.pos++
		return deploytypes.RollbackSelector{Name: tok}, nil
	}
}

func (p *parser) parseList() (Command, error) {
	usage := UsageList
	p.next()
	switch strings.ToLower(p.peek()) {
	case "github", "gitlab":
		p.pos++
		return p.parseSourceList(usage)
	case "quay":
		p.pos++
		if !isRepositoriesKeyword(p.next()) || !p.done() {
			return Command{}, p.syntaxErr(usage, "expected 'repos' or 'repositories'")
		}
		return Command{Kind: KindListImageRepositories}, nil
	}
	p.skipPlatformKeyword()

	switch strings.ToLower(p.next()) {
	case "projects":
		if !p.done() {
			return Command{}, p.syntaxErr(usage, "unexpected trailing text")
		}
		return Command{Kind: KindListProjects}, nil
	case "project":
	default:
		return Command{}, p.syntaxErr(usage, "expected 'projects' or 'project'")
	}

	project, err := p.value(usage, "project id", identPattern)
	if err != nil {
		return Command{}, err
	}
	req := deploytypes.DeploymentRequest{Project: deploytypes.ByID(project)}

	switch strings.ToLower(p.next()) {
	case "workloads":
		if !p.done() {
			return Command{}, p.syntaxErr(usage, "unexpected trailing text")
		}
		return Command{Kind: KindListWorkloads, Request: req}, nil
	case "workload":
	default:
		return Command{}, p.syntaxErr(usage, "expected 'workloads' or 'workload'")
	}

	workload, err := p.value(usage, "workload id", identPattern)
	if err != nil {
		return Command{}, err
	}
	req.Workload = deploytypes.ByID(workload)
	if err := p.keyword(usage, "revisions"); err != nil {
		return Command{}, err
	}
	if !p.done() {
		return Command{}, p.syntaxErr(usage, "unexpected trailing text")
	}
	return Command{Kind: KindListRevisions, Request: req}, nil
}

func (p *parser) parseSourceList(usage string) (Command, error) {
	tok := p.next()
	if isRepositoriesKeyword(tok) {
		if !p.done() {
			return Command{}, p.syntaxErr(usage, "unexpected trailing text")
		}
		return Command{Kind: KindListSourceRepositories}, nil
	}
	if tok == "" {
		return Command{}, p.syntaxErr(usage, "expected 'repos' or a repository name")
	}
	if !namePattern.MatchString(tok) {
		return Command{}, p.syntaxErr(usage, "invalid repository name '%s'", tok)
	}
	if err := p.keyword(usage, "commits"); err != nil {
		return Command{}, err
	}
	if !p.done() {
		return Command{}, p.syntaxErr(usage, "unexpected trailing text")
	}
	return Command{Kind: KindListCommits, Repository: tok}, nil
}

func isRepositoriesKeyword(tok string) bool {
	return strings.EqualFold(tok, "repos") || strings.EqualFold(tok, "repositories")
}

// IsCommand reports whether text starts with a known verb. Chat integrations
// use it to ignore unrelated messages.
func IsCommand(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	for _, verb := range supportedVerbs {
		if strings.EqualFold(fields[0], verb) {
			return true
		}
	}
	return false
}
