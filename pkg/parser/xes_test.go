package parser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	lverrors "github.com/logflow/logvar/pkg/errors"
)

const sampleXES = `<?xml version="1.0" encoding="UTF-8" ?>
<!-- exported for tests -->
<log xes.version="1.0" xmlns="http://www.xes-standard.org/">
	<extension name="Concept" prefix="concept" uri="http://www.xes-standard.org/concept.xesext"/>
	<global scope="event">
		<string key="concept:name" value="__INVALID__"/>
	</global>
	<string key="concept:name" value="loans"/>
	<trace>
		<string key="concept:name" value="case-1"/>
		<event>
			<string key="concept:name" value="A"/>
			<date key="time:timestamp" value="2024-01-01T10:00:00.000+01:00"/>
			<string key="org:resource" value="ann"/>
		</event>
		<event>
			<string key="org:resource" value="bob"/>
			<string key="concept:name" value="B &amp; C"/>
		</event>
	</trace>
	<trace>
		<string key="concept:name" value="case-2"/>
		<event>
			<list key="history">
				<values>
					<string key="concept:name" value="nested"/>
				</values>
			</list>
			<string key="concept:name" value="A"/>
		</event>
	</trace>
</log>
`

func parseXES(t *testing.T, doc string) error {
	t.Helper()
	_, err := NewXESParser(DefaultConfig()).Parse(context.Background(), strings.NewReader(doc), "x")
	return err
}

func TestXESParser_Parse(t *testing.T) {
	log, err := NewXESParser(DefaultConfig()).Parse(context.Background(), strings.NewReader(sampleXES), "loans")
	require.NoError(t, err)

	require.Equal(t, "loans", log.Name)
	require.Len(t, log.Traces, 2)

	require.Equal(t, "case-1", log.Traces[0].CaseID)
	require.Equal(t, []string{"A", "B & C"}, log.Traces[0].Activities())
	require.Equal(t, "ann", log.Traces[0].Events[0].Resource)
	require.Equal(t, "bob", log.Traces[0].Events[1].Resource)
	require.NotZero(t, log.Traces[0].Events[0].Timestamp)

	require.Equal(t, "case-2", log.Traces[1].CaseID)
	require.Equal(t, []string{"A"}, log.Traces[1].Activities())
}

func TestXESParser_KeepsEmptyTraces(t *testing.T) {
	doc := `<log>
		<trace><string key="concept:name" value="1"/><event><string key="concept:name" value="A"/></event></trace>
		<trace><string key="concept:name" value="2"/></trace>
		<trace/>
	</log>`

	log, err := NewXESParser(DefaultConfig()).Parse(context.Background(), strings.NewReader(doc), "gaps")
	require.NoError(t, err)
	require.Len(t, log.Traces, 3)
	require.Empty(t, log.Traces[1].Events)
	require.Empty(t, log.Traces[2].Events)
	require.Equal(t, "3", log.Traces[2].CaseID, "traces without a name are numbered by position")
}

func TestXESParser_QuotedAngleBracket(t *testing.T) {
	doc := `<log><trace><event><string key="concept:name" value="a>b"/></event></trace></log>`

	log, err := NewXESParser(DefaultConfig()).Parse(context.Background(), strings.NewReader(doc), "q")
	require.NoError(t, err)
	require.Equal(t, []string{"a>b"}, log.Traces[0].Activities())
}

func TestXESParser_CustomActivityKey(t *testing.T) {
	doc := `<log><trace><event>
		<string key="concept:name" value="ignored"/>
		<string key="activity" value="Submit"/>
	</event></trace></log>`

	cfg := DefaultConfig()
	cfg.ActivityKey = "activity"
	log, err := NewXESParser(cfg).Parse(context.Background(), strings.NewReader(doc), "k")
	require.NoError(t, err)
	require.Equal(t, []string{"Submit"}, log.Traces[0].Activities())
}

func TestXESParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no log element", `<?xml version="1.0"?><foo/>`},
		{"empty input", ``},
		{"event without activity", `<log><trace><event><string key="org:resource" value="x"/></event></trace></log>`},
		{"self-closing event", `<log><trace><event/></trace></log>`},
		{"event outside trace", `<log><event><string key="concept:name" value="A"/></event></log>`},
		{"truncated", `<log><trace><event><string key="concept:name" value="A"/>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parseXES(t, tt.doc)
			if !errors.Is(err, ErrInvalidXES) {
				t.Fatalf("error = %v, want ErrInvalidXES", err)
			}
			if lverrors.GetCode(err).Class() != lverrors.ClassInput {
				t.Errorf("class = %s, want input", lverrors.GetCode(err).Class())
			}
		})
	}
}

func TestXESParser_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewXESParser(DefaultConfig()).Parse(ctx, strings.NewReader(sampleXES), "c")
	require.True(t, lverrors.IsCode(err, lverrors.CodeContextCanceled), "error = %v", err)
}

func TestXMLAttr(t *testing.T) {
	tests := []struct {
		el, name, want string
		ok             bool
	}{
		{`<string key="a" value="b"/>`, "key", "a", true},
		{`<string key="a" value="b"/>`, "value", "b", true},
		{`<string value='x key="y"' key="k"/>`, "key", "k", true},
		{`<string mykey="a" key="b"/>`, "key", "b", true},
		{`<string key = "a"/>`, "key", "a", true},
		{`<string/>`, "key", "", false},
	}
	for _, tt := range tests {
		got, ok := xmlAttr([]byte(tt.el), tt.name)
		if ok != tt.ok || string(got) != tt.want {
			t.Errorf("xmlAttr(%s, %s) = %q, %v; want %q, %v", tt.el, tt.name, got, ok, tt.want, tt.ok)
		}
	}
}
