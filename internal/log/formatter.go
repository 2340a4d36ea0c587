package log

import (
	"bytes"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Pattern placeholders.
const (
	verbText = iota
	verbTime
	verbLevel
	verbMsg
	verbField
	verbCaller
)

var verbs = map[string]int{
	"%time":   verbTime,
	"%level":  verbLevel,
	"%msg":    verbMsg,
	"%field":  verbField,
	"%caller": verbCaller,
}

type segment struct {
	verb int
	text string
}

// patternFormatter renders entries through a pattern such as
// "%time [%level] %msg %field". The pattern is split into segments once.
type patternFormatter struct {
	segments   []segment
	timeLayout string
}

func newPatternFormatter(pattern, timeLayout string) (*patternFormatter, error) {
	f := &patternFormatter{timeLayout: timeLayout}
	rest := pattern
	for rest != "" {
		i := strings.IndexByte(rest, '%')
		if i < 0 {
			f.segments = append(f.segments, segment{verb: verbText, text: rest})
			break
		}
		if i > 0 {
			f.segments = append(f.segments, segment{verb: verbText, text: rest[:i]})
			rest = rest[i:]
		}

		j := 1
		for j < len(rest) && rest[j] >= 'a' && rest[j] <= 'z' {
			j++
		}
		verb, ok := verbs[rest[:j]]
		if !ok {
			return nil, fmt.Errorf("unknown log pattern placeholder %q", rest[:j])
		}
		f.segments = append(f.segments, segment{verb: verb})
		rest = rest[j:]
	}
	return f, nil
}

// Format implements logrus.Formatter. Lines end with exactly one newline
// and carry no trailing blanks when an entry has no fields.
func (f *patternFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	for _, s := range f.segments {
		switch s.verb {
		case verbText:
			b.WriteString(s.text)
		case verbTime:
			b.WriteString(entry.Time.Format(f.timeLayout))
		case verbLevel:
			b.WriteString(entry.Level.String())
		case verbMsg:
			b.WriteString(entry.Message)
		case verbField:
			writeFields(b, entry.Data)
		case verbCaller:
			b.WriteString(callSite())
		}
	}

	line := bytes.TrimRight(b.Bytes(), " \t\n")
	b.Truncate(len(line))
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// writeFields renders fields as key=value pairs joined by commas, sorted by
// key with the error last. Values with blanks or separators are quoted.
func writeFields(b *bytes.Buffer, data logrus.Fields) {
	keys := make([]string, 0, len(data))
	for k := range data {
		if k != logrus.ErrorKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := data[logrus.ErrorKey]; ok {
		keys = append(keys, logrus.ErrorKey)
	}

	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fieldValue(data[k]))
	}
}

func fieldValue(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	if s == "" || strings.ContainsAny(s, " \t\n,=\"") {
		return strconv.Quote(s)
	}
	return s
}

// callSite renders the first frame outside logrus, the formatter and the
// adapter as package/file.go:line.
func callSite() string {
	pcs := make([]uintptr, 32)
	frames := runtime.CallersFrames(pcs[:runtime.Callers(2, pcs)])
	for {
		fr, more := frames.Next()
		if !internalFrame(fr.Function) {
			dir := filepath.Base(filepath.Dir(fr.File))
			return dir + "/" + filepath.Base(fr.File) + ":" + strconv.Itoa(fr.Line)
		}
		if !more {
			return "-"
		}
	}
}

func internalFrame(fn string) bool {
	return strings.Contains(fn, "sirupsen/logrus") ||
		strings.Contains(fn, "(*patternFormatter)") ||
		strings.Contains(fn, "(*logrusAdapter)")
}
