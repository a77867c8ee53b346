package parser

import (
	"bufio"
	"bytes"
	"context"
	"html"
	"io"
	"strconv"

	"github.com/logflow/logvar/internal/model"
	lverrors "github.com/logflow/logvar/pkg/errors"
)

// XML element names
var (
	xmlLog   = []byte("log")
	xmlTrace = []byte("trace")
	xmlEvent = []byte("event")
)

// Attribute elements carry a key and a value. Nestable elements may contain
// further attributes that belong to their parent, not to the trace or event.
var (
	xesAttributes = [][]byte{
		[]byte("string"), []byte("date"), []byte("int"),
		[]byte("float"), []byte("boolean"), []byte("id"),
	}
	xesContainers = [][]byte{
		[]byte("list"), []byte("container"), []byte("values"),
	}
)

// XES parser states
type xesState uint8

const (
	stateInit xesState = iota
	stateLog
	stateTrace
	stateEvent
	stateDone
)

// XESParser implements streaming XES parsing using a tag-level state
// machine. Only the trace structure and the configured activity,
// timestamp and resource keys are kept.
type XESParser struct {
	cfg          Config
	caseKey      []byte
	activityKey  []byte
	timestampKey []byte
	resourceKey  []byte
}

// NewXESParser creates a new XES parser. Trace-level attributes named by
// cfg.ActivityKey ("concept:name") become case ids.
func NewXESParser(cfg Config) *XESParser {
	cfg = cfg.withDefaults()
	return &XESParser{
		cfg:          cfg,
		caseKey:      []byte(cfg.ActivityKey),
		activityKey:  []byte(cfg.ActivityKey),
		timestampKey: []byte(cfg.TimestampKey),
		resourceKey:  []byte(cfg.ResourceKey),
	}
}

// Parse implements the Parser interface.
//
// Traces without events are kept as empty traces; rejecting them is up to
// the caller. An event without an activity attribute is an error.
func (p *XESParser) Parse(ctx context.Context, r io.Reader, name string) (*model.Log, error) {
	reader := bufio.NewReaderSize(r, p.cfg.BufferSize)
	log := &model.Log{Name: name}

	state := stateInit
	depth := 0
	var event model.Event
	var hasActivity bool
	var tag []byte

	for n := 0; ; n++ {
		if n&0xfff == 0 {
			if err := ctx.Err(); err != nil {
				return nil, lverrors.Wrap(err, lverrors.CodeContextCanceled, "xes parsing canceled")
			}
		}

		var err error
		tag, err = readTag(reader, tag[:0])
		if err != nil && err != io.EOF {
			return nil, lverrors.Wrap(err, lverrors.CodeSourceAccess, "read xes")
		}
		el := trimToTag(tag)

		switch {
		case len(el) == 0 || el[1] == '?' || el[1] == '!':
			// prolog, comments, text

		case isOpenTag(el, xmlLog):
			if state != stateInit {
				return nil, xesError("nested <log>", len(log.Traces))
			}
			state = stateLog

		case isEndTag(el, xmlLog):
			if state != stateLog {
				return nil, xesError("unexpected </log>", len(log.Traces))
			}
			state = stateDone

		case isOpenTag(el, xmlTrace):
			if state != stateLog {
				return nil, xesError("<trace> outside <log>", len(log.Traces))
			}
			log.Traces = append(log.Traces, model.Trace{CaseID: strconv.Itoa(len(log.Traces) + 1)})
			if !isSelfClosing(el) {
				state = stateTrace
			}

		case isEndTag(el, xmlTrace):
			if state != stateTrace {
				return nil, xesError("unexpected </trace>", len(log.Traces))
			}
			state = stateLog

		case isOpenTag(el, xmlEvent):
			if state != stateTrace {
				return nil, xesError("<event> outside <trace>", len(log.Traces))
			}
			if isSelfClosing(el) {
				return nil, xesError("event without "+p.cfg.ActivityKey, len(log.Traces))
			}
			event = model.Event{}
			hasActivity = false
			state = stateEvent

		case isEndTag(el, xmlEvent):
			if state != stateEvent {
				return nil, xesError("unexpected </event>", len(log.Traces))
			}
			if !hasActivity {
				return nil, xesError("event without "+p.cfg.ActivityKey, len(log.Traces))
			}
			t := &log.Traces[len(log.Traces)-1]
			t.Events = append(t.Events, event)
			state = stateTrace

		case isElement(el, xesAttributes):
			if depth == 0 {
				switch state {
				case stateTrace:
					if key, value, ok := keyValue(el); ok && bytes.Equal(key, p.caseKey) {
						log.Traces[len(log.Traces)-1].CaseID = value
					}
				case stateEvent:
					if p.applyEventAttribute(el, &event) {
						hasActivity = true
					}
				}
			}
			if !isSelfClosing(el) {
				depth++
			}

		case isElement(el, xesContainers):
			if !isSelfClosing(el) {
				depth++
			}

		case isEndElement(el, xesAttributes), isEndElement(el, xesContainers):
			if depth > 0 {
				depth--
			}
		}

		if err == io.EOF {
			break
		}
	}

	switch state {
	case stateInit:
		return nil, lverrors.Wrap(ErrInvalidXES, lverrors.CodeInvalidFormat, "no <log> element")
	case stateTrace, stateEvent:
		return nil, xesError("truncated document", len(log.Traces))
	}
	return log, nil
}

// applyEventAttribute stores a recognized event attribute and reports
// whether it was the activity.
func (p *XESParser) applyEventAttribute(el []byte, e *model.Event) bool {
	key, value, ok := keyValue(el)
	if !ok {
		return false
	}
	switch {
	case bytes.Equal(key, p.activityKey):
		e.Activity = value
		return true
	case bytes.Equal(key, p.timestampKey):
		if ts, err := parseTimestamp(value); err == nil {
			e.Timestamp = ts
		}
	case bytes.Equal(key, p.resourceKey):
		e.Resource = value
	}
	return false
}

func xesError(msg string, traces int) error {
	return lverrors.Wrap(ErrInvalidXES, lverrors.CodeInvalidFormat, msg).
		WithContext("trace", traces)
}

// readTag reads up to and including the next '>' that is not inside a
// quoted attribute value.
func readTag(r *bufio.Reader, buf []byte) ([]byte, error) {
	for {
		chunk, err := r.ReadSlice('>')
		buf = append(buf, chunk...)
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil || !inQuotedValue(buf) {
			return buf, err
		}
	}
}

// inQuotedValue reports whether b ends inside a quoted attribute value of
// the tag it contains. Text before the tag and comments are not scanned.
func inQuotedValue(b []byte) bool {
	i := bytes.IndexByte(b, '<')
	if i < 0 || i+1 < len(b) && (b[i+1] == '!' || b[i+1] == '?') {
		return false
	}
	var quote byte
	for _, c := range b[i:] {
		switch {
		case quote == 0 && (c == '"' || c == '\''):
			quote = c
		case c == quote:
			quote = 0
		}
	}
	return quote != 0
}

// trimToTag drops text content preceding the tag.
func trimToTag(b []byte) []byte {
	i := bytes.IndexByte(b, '<')
	if i < 0 {
		return nil
	}
	b = bytes.TrimSpace(b[i:])
	if len(b) < 3 || b[len(b)-1] != '>' {
		return nil
	}
	return b
}

// isOpenTag checks if el opens (or self-closes) the given element.
func isOpenTag(el, element []byte) bool {
	if len(el) < len(element)+2 || !bytes.HasPrefix(el[1:], element) {
		return false
	}
	return isNameEnd(el[1+len(element)])
}

// isEndTag checks if el is </element>.
func isEndTag(el, element []byte) bool {
	if len(el) < len(element)+3 || el[1] != '/' || !bytes.HasPrefix(el[2:], element) {
		return false
	}
	return isNameEnd(el[2+len(element)])
}

func isNameEnd(c byte) bool {
	return c == '>' || c == '/' || c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isSelfClosing(el []byte) bool {
	return len(el) >= 2 && el[len(el)-2] == '/'
}

func isElement(el []byte, names [][]byte) bool {
	for _, n := range names {
		if isOpenTag(el, n) {
			return true
		}
	}
	return false
}

func isEndElement(el []byte, names [][]byte) bool {
	for _, n := range names {
		if isEndTag(el, n) {
			return true
		}
	}
	return false
}

// keyValue extracts the key and the unescaped value of an attribute element.
func keyValue(el []byte) ([]byte, string, bool) {
	key, ok := xmlAttr(el, "key")
	if !ok {
		return nil, "", false
	}
	value, ok := xmlAttr(el, "value")
	if !ok {
		return nil, "", false
	}
	if bytes.IndexByte(value, '&') >= 0 {
		return key, html.UnescapeString(string(value)), true
	}
	return key, string(value), true
}

// xmlAttr returns the raw value of the named XML attribute of el.
func xmlAttr(el []byte, name string) ([]byte, bool) {
	i := bytes.IndexAny(el, " \t\r\n")
	if i < 0 {
		return nil, false
	}
	for i < len(el) {
		for i < len(el) && (el[i] == ' ' || el[i] == '\t' || el[i] == '\r' || el[i] == '\n') {
			i++
		}
		eq := bytes.IndexByte(el[i:], '=')
		if eq < 0 {
			return nil, false
		}
		attr := bytes.TrimSpace(el[i : i+eq])
		i += eq + 1
		for i < len(el) && el[i] == ' ' {
			i++
		}
		if i >= len(el) || (el[i] != '"' && el[i] != '\'') {
			return nil, false
		}
		q := el[i]
		end := bytes.IndexByte(el[i+1:], q)
		if end < 0 {
			return nil, false
		}
		value := el[i+1 : i+1+end]
		i += end + 2
		if string(attr) == name {
			return value, true
		}
	}
	return nil, false
}
