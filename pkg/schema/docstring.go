// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"regexp"
	"strings"
)

// ParamDoc is the documentation recovered for a single parameter.
type ParamDoc struct {
	Name        string
	Type        string
	Description string
	Default     string
	HasDefault  bool
}

// DocInfo is the structured result of parsing a tool docstring.
type DocInfo struct {
	// Summary is the prose that precedes the first section.
	Summary string
	Params  map[string]*ParamDoc
	Returns string
}

// Param returns the documentation for name, matching case-insensitively.
func (d *DocInfo) Param(names ...string) *ParamDoc {
	if d == nil {
		return nil
	}
	for _, n := range names {
		if p, ok := d.Params[strings.ToLower(n)]; ok {
			return p
		}
	}
	return nil
}

var (
	googleHeader = regexp.MustCompile(`^(?i)(args|arguments|parameters|params|keyword args|kwargs)\s*:\s*$`)
	googleOther  = regexp.MustCompile(`^(?i)(returns?|yields?|raises|examples?|notes?|attributes|see also)\s*:\s*$`)
	googleEntry  = regexp.MustCompile(`^\*{0,2}([A-Za-z_][A-Za-z0-9_]*)\s*(?:\(([^)]*)\))?\s*:\s*(.*)$`)
	numpyRule    = regexp.MustCompile(`^-{3,}\s*$`)
	numpyEntry   = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*(?::\s*(.*))?$`)
	sphinxField  = regexp.MustCompile(`^:(param|parameter|arg|argument|type|default|returns?|rtype|raises?)\b\s*([^:]*):\s*(.*)$`)

	proseDefaults = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bdefaults?\s+to\s+(.+?)\.?\s*$`),
		regexp.MustCompile(`(?i)\(\s*default\s*[:=]?\s*([^)]+?)\s*\)`),
		regexp.MustCompile(`(?i)\bdefault\s*[:=]\s*(\S+?)[.,;]?\s*$`),
	}
	typeDefault = regexp.MustCompile(`(?i),?\s*(?:optional)?\s*,?\s*defaults?\b\s*[:=]?\s*(.+)$`)
)

// ParseDoc extracts the summary and per-parameter documentation from doc.
// Google ("Args:"), NumPy ("Parameters" underlined with dashes) and Sphinx
// (":param x:") styles are recognized. Unparseable input degrades to a
// summary-only result.
func ParseDoc(doc string) *DocInfo {
	info := &DocInfo{Params: map[string]*ParamDoc{}}
	lines := dedent(strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n"))

	var summary []string
	for i := 0; i < len(lines); {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		switch {
		case googleHeader.MatchString(trimmed) && indentOf(line) == 0:
			i = parseGoogle(lines, i+1, info)
		case googleOther.MatchString(trimmed) && indentOf(line) == 0:
			i = parseGoogleOther(lines, i+1, trimmed, info)
		case i+1 < len(lines) && numpyRule.MatchString(strings.TrimSpace(lines[i+1])) && trimmed != "":
			i = parseNumpy(lines, i+2, trimmed, info)
		case strings.HasPrefix(trimmed, ":") && sphinxField.MatchString(trimmed):
			i = parseSphinx(lines, i, info)
		default:
			if len(info.Params) == 0 && info.Returns == "" {
				summary = append(summary, trimmed)
			}
			i++
		}
	}
	info.Summary = joinParagraphs(summary)

	for _, p := range info.Params {
		p.Description = strings.TrimSpace(p.Description)
		if !p.HasDefault {
			if v, ok := proseDefault(p.Description); ok {
				p.Default, p.HasDefault = v, true
			}
		}
	}
	return info
}

func parseGoogle(lines []string, i int, info *DocInfo) int {
	var cur *ParamDoc
	base := -1
	for ; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		ind := indentOf(line)
		if ind == 0 {
			return i
		}
		if base < 0 {
			base = ind
		}
		if ind <= base {
			m := googleEntry.FindStringSubmatch(trimmed)
			if m == nil {
				continue
			}
			cur = &ParamDoc{Name: m[1], Description: m[3]}
			if m[2] != "" {
				applyType(cur, m[2])
			}
			info.Params[strings.ToLower(m[1])] = cur
			continue
		}
		if cur != nil {
			cur.Description += " " + trimmed
		}
	}
	return i
}

func parseGoogleOther(lines []string, i int, header string, info *DocInfo) int {
	isReturns := strings.HasPrefix(strings.ToLower(header), "return")
	var body []string
	for ; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && indentOf(line) == 0 {
			break
		}
		if trimmed != "" {
			body = append(body, trimmed)
		}
	}
	if isReturns {
		info.Returns = strings.Join(body, " ")
	}
	return i
}

func parseNumpy(lines []string, i int, header string, info *DocInfo) int {
	h := strings.ToLower(header)
	params := h == "parameters" || h == "params" || h == "arguments" || h == "other parameters"
	var cur *ParamDoc
	var body []string
	for ; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if i+1 < len(lines) && trimmed != "" && numpyRule.MatchString(strings.TrimSpace(lines[i+1])) {
			break
		}
		if trimmed == "" {
			continue
		}
		if !params {
			body = append(body, trimmed)
			continue
		}
		if indentOf(line) == 0 {
			m := numpyEntry.FindStringSubmatch(trimmed)
			if m == nil {
				continue
			}
			cur = &ParamDoc{Name: m[1]}
			if m[2] != "" {
				applyType(cur, m[2])
			}
			info.Params[strings.ToLower(m[1])] = cur
			continue
		}
		if cur != nil {
			cur.Description += " " + trimmed
		}
	}
	if strings.HasPrefix(h, "return") {
		info.Returns = strings.Join(body, " ")
	}
	return i
}

func parseSphinx(lines []string, i int, info *DocInfo) int {
	var target *string
	for ; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			target = nil
			continue
		}
		m := sphinxField.FindStringSubmatch(trimmed)
		if m == nil {
			if target != nil && indentOf(line) > 0 {
				*target += " " + trimmed
				continue
			}
			return i
		}
		directive, arg, text := m[1], strings.TrimSpace(m[2]), strings.TrimSpace(m[3])
		switch directive {
		case "param", "parameter", "arg", "argument":
			fields := strings.Fields(arg)
			if len(fields) == 0 {
				target = nil
				continue
			}
			name := fields[len(fields)-1]
			p := sphinxParam(info, name)
			if len(fields) > 1 {
				applyType(p, strings.Join(fields[:len(fields)-1], " "))
			}
			p.Description = text
			target = &p.Description
		case "type":
			p := sphinxParam(info, arg)
			applyType(p, text)
			target = nil
		case "default":
			p := sphinxParam(info, arg)
			p.Default, p.HasDefault = cleanLiteral(text), true
			target = nil
		case "return", "returns":
			info.Returns = text
			target = &info.Returns
		default:
			target = nil
		}
	}
	return i
}

func sphinxParam(info *DocInfo, name string) *ParamDoc {
	key := strings.ToLower(name)
	if p, ok := info.Params[key]; ok {
		return p
	}
	p := &ParamDoc{Name: name}
	info.Params[key] = p
	return p
}

// applyType records a type annotation, peeling off "optional" and
// "default X" qualifiers that NumPy and Google styles allow there.
func applyType(p *ParamDoc, typ string) {
	typ = strings.TrimSpace(typ)
	if m := typeDefault.FindStringSubmatchIndex(typ); m != nil {
		p.Default, p.HasDefault = cleanLiteral(typ[m[2]:m[3]]), true
		typ = strings.TrimSpace(typ[:m[0]])
	}
	typ = strings.TrimSuffix(strings.TrimSpace(typ), ",")
	typ = strings.TrimSpace(strings.TrimSuffix(typ, "optional"))
	p.Type = strings.TrimSuffix(strings.TrimSpace(typ), ",")
}

func proseDefault(desc string) (string, bool) {
	for _, re := range proseDefaults {
		if m := re.FindStringSubmatch(desc); m != nil {
			return cleanLiteral(m[1]), true
		}
	}
	return "", false
}

func cleanLiteral(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".")
	s = strings.Trim(s, "`")
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return s
}

func joinParagraphs(lines []string) string {
	var paras []string
	var cur []string
	for _, l := range lines {
		if l == "" {
			if len(cur) > 0 {
				paras = append(paras, strings.Join(cur, " "))
				cur = nil
			}
			continue
		}
		cur = append(cur, l)
	}
	if len(cur) > 0 {
		paras = append(paras, strings.Join(cur, " "))
	}
	return strings.Join(paras, "\n\n")
}

func indentOf(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}

// dedent removes the indentation common to every non-blank line. The first
// line is ignored when computing the margin since docstrings often start
// right after the opening quote.
func dedent(lines []string) []string {
	margin := -1
	for i, l := range lines {
		if strings.TrimSpace(l) == "" || (i == 0 && len(lines) > 1) {
			continue
		}
		if ind := indentOf(l); margin < 0 || ind < margin {
			margin = ind
		}
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			out[i] = ""
			continue
		}
		if i == 0 {
			out[i] = strings.TrimLeft(l, " \t")
			continue
		}
		out[i] = trimIndent(l, margin)
	}
	return out
}

func trimIndent(l string, n int) string {
	for n > 0 && len(l) > 0 {
		switch l[0] {
		case ' ':
			n--
		case '\t':
			n -= 4
		default:
			return l
		}
		l = l[1:]
	}
	return l
}
