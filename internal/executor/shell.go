package executor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sokinpui/docexec/model"
)

// dialect describes how a shell language splits and tokenizes statements.
type dialect struct {
	name         string
	continuation string
	comments     []string
	tokenize     func(line string, lookup func(string) (string, bool)) ([]string, error)
	// script builds the argv running the remaining statements in the shell.
	script func(shell string, lines []string, stmts []statement) []string
}

var posixDialect = dialect{
	name:         "posix",
	continuation: `\`,
	comments:     []string{"#"},
	tokenize:     tokenizePosix,
	script: func(shell string, lines []string, stmts []statement) []string {
		return []string{shell, "-c", strings.Join(lines[stmts[0].first:], "\n")}
	},
}

var dosDialect = dialect{
	name:         "dos",
	continuation: "^",
	comments:     []string{"::", "rem ", "@rem "},
	tokenize:     tokenizeDos,
	script: func(shell string, _ []string, stmts []statement) []string {
		texts := make([]string, len(stmts))
		for i, s := range stmts {
			texts[i] = s.text
		}
		return []string{shell, "/C", strings.Join(texts, " & ")}
	},
}

func (dl dialect) isComment(trimmed string) bool {
	lower := strings.ToLower(trimmed)
	for _, marker := range dl.comments {
		if strings.HasPrefix(lower, marker) || lower == strings.TrimSpace(marker) {
			return true
		}
	}
	return false
}

// statement is one command of a shell unit, continuation lines joined.
type statement struct {
	text  string
	first int
}

// segment splits code into statements. Blank and comment lines between
// statements are dropped.
func segment(code string, dl dialect) ([]statement, []string) {
	lines := strings.Split(strings.ReplaceAll(code, "\r\n", "\n"), "\n")

	var stmts []statement
	var cur strings.Builder
	first := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if first < 0 {
			if trimmed == "" || dl.isComment(trimmed) {
				continue
			}
			first = i
		}

		body := strings.TrimRight(line, " \t")
		if strings.HasSuffix(body, dl.continuation) && !strings.HasSuffix(body, dl.continuation+dl.continuation) {
			cur.WriteString(strings.TrimSuffix(body, dl.continuation))
			continue
		}
		cur.WriteString(line)
		stmts = append(stmts, statement{text: strings.TrimSpace(cur.String()), first: first})
		cur.Reset()
		first = -1
	}
	if first >= 0 && strings.TrimSpace(cur.String()) != "" {
		stmts = append(stmts, statement{text: strings.TrimSpace(cur.String()), first: first})
	}
	return stmts, lines
}

func (d *Dispatcher) runShell(ctx context.Context, unit *model.Unit, dl dialect) (string, error) {
	stmts, lines := segment(unit.CodeText(), dl)
	lookup := lookupEnv(unit.Env)
	env := childEnv(unit.Env)

	var output strings.Builder
	for i, st := range stmts {
		if err := ctx.Err(); err != nil {
			return output.String(), err
		}

		o := d.cfg.Commands[commandName(st.text)]
		if useShell(o) {
			// The shell binary runs this statement and every following one.
			out, err := d.runProcess(ctx, dl.script(d.shellBinary(dl), lines, stmts[i:]), env, d.cfg.WorkDir)
			output.WriteString(out)
			return output.String(), err
		}

		argv, err := dl.tokenize(st.text, lookup)
		if err != nil {
			return output.String(), &model.ExecutionError{Command: st.text, ExitStatus: -1, Err: err}
		}
		if len(argv) == 0 {
			continue
		}

		var out string
		if o.Handler != "" {
			out, err = d.runHandler(ctx, argv[0], o.Handler, argv[1:])
		} else {
			if o.Path != "" {
				argv[0] = o.Path
			}
			out, err = d.runProcess(ctx, argv, env, d.cfg.WorkDir)
		}
		output.WriteString(out)
		if err != nil {
			return output.String(), err
		}
	}
	return output.String(), nil
}

// commandName returns the first word of a statement with surrounding quotes
// removed. Only statements leaving the shell are fully tokenized.
func commandName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], `"'`)
}

func useShell(o CommandOverride) bool {
	if o.UseShell != nil {
		return *o.UseShell
	}
	return o.Handler == "" && o.Path == ""
}

func (d *Dispatcher) shellBinary(dl dialect) string {
	if dl.name == dosDialect.name {
		return "cmd"
	}
	if d.cfg.Shell != "" {
		return d.cfg.Shell
	}
	if _, err := exec.LookPath("bash"); err == nil {
		return "bash"
	}
	return "sh"
}

// tokenizePosix splits a statement into words the way a POSIX shell does
// for simple commands: quotes, backslash escapes, `#` comments and $VAR or
// ${VAR} expansion outside single quotes.
func tokenizePosix(line string, lookup func(string) (string, bool)) ([]string, error) {
	var args []string
	var cur strings.Builder
	inWord := false

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == ' ' || c == '\t':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		case c == '#' && !inWord:
			i = len(line)
		case c == '\'':
			end := strings.IndexByte(line[i+1:], '\'')
			if end < 0 {
				return nil, fmt.Errorf("unclosed single quote in: %s", line)
			}
			cur.WriteString(line[i+1 : i+1+end])
			i += end + 1
			inWord = true
		case c == '"':
			inWord = true
			closed := false
			for i++; i < len(line); i++ {
				c := line[i]
				if c == '"' {
					closed = true
					break
				}
				if c == '\\' && i+1 < len(line) && strings.IndexByte("\"\\$`", line[i+1]) >= 0 {
					cur.WriteByte(line[i+1])
					i++
					continue
				}
				if c == '$' {
					var value string
					value, i = expandPosixVar(line, i, lookup)
					cur.WriteString(value)
					continue
				}
				cur.WriteByte(c)
			}
			if !closed {
				return nil, fmt.Errorf("unclosed double quote in: %s", line)
			}
		case c == '\\':
			if i+1 < len(line) {
				cur.WriteByte(line[i+1])
				i++
			}
			inWord = true
		case c == '$':
			var value string
			value, i = expandPosixVar(line, i, lookup)
			cur.WriteString(value)
			inWord = inWord || value != ""
		default:
			cur.WriteByte(c)
			inWord = true
		}
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args, nil
}

// expandPosixVar expands the reference starting at line[i] == '$'. It
// returns the value and the index of the last consumed byte.
func expandPosixVar(line string, i int, lookup func(string) (string, bool)) (string, int) {
	if i+1 >= len(line) {
		return "$", i
	}
	if line[i+1] == '{' {
		end := strings.IndexByte(line[i+2:], '}')
		if end < 0 {
			return "$", i
		}
		value, _ := lookup(line[i+2 : i+2+end])
		return value, i + 2 + end
	}
	j := i + 1
	for j < len(line) && isNameByte(line[j], j == i+1) {
		j++
	}
	if j == i+1 {
		return "$", i
	}
	value, _ := lookup(line[i+1 : j])
	return value, j - 1
}

func isNameByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}

// tokenizeDos splits a cmd.exe statement: double quotes group words, `^`
// escapes the next character and %VAR% is expanded when defined.
func tokenizeDos(line string, lookup func(string) (string, bool)) ([]string, error) {
	var args []string
	var cur strings.Builder
	inWord, quoted := false, false

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case (c == ' ' || c == '\t') && !quoted:
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		case c == '"':
			quoted = !quoted
			inWord = true
		case c == '^' && !quoted:
			if i+1 < len(line) {
				cur.WriteByte(line[i+1])
				i++
			}
			inWord = true
		case c == '%':
			end := strings.IndexByte(line[i+1:], '%')
			if end > 0 {
				if value, ok := lookup(line[i+1 : i+1+end]); ok {
					cur.WriteString(value)
					i += end + 1
					inWord = true
					continue
				}
			}
			cur.WriteByte(c)
			inWord = true
		default:
			cur.WriteByte(c)
			inWord = true
		}
	}
	if quoted {
		return nil, fmt.Errorf("unclosed double quote in: %s", line)
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args, nil
}
