package validate

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://www.loc.gov/METS/"
           xmlns="http://www.loc.gov/METS/"
           elementFormDefault="qualified">
  <xs:element name="mets">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="file" minOccurs="0" maxOccurs="unbounded">
          <xs:complexType>
            <xs:attribute name="ID" type="xs:ID" use="required"/>
            <xs:attribute name="SIZE" type="xs:long"/>
          </xs:complexType>
        </xs:element>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>
`

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeSchema(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "dias-mets.xsd")
	require.NoError(t, os.WriteFile(p, []byte(testSchema), 0o644))
	return p
}

func TestLocate(t *testing.T) {
	p := writeSchema(t)

	got, ok := Locate(p)
	assert.True(t, ok)
	assert.Equal(t, p, got)

	_, ok = Locate(filepath.Join(t.TempDir(), "missing.xsd"))
	assert.False(t, ok)

	_, ok = Locate(t.TempDir())
	assert.False(t, ok, "directories are not schemas")

	_, ok = Locate("")
	assert.False(t, ok)
}

func TestXSD_Validate(t *testing.T) {
	schema := writeSchema(t)
	x, err := NewXSD(schema)
	require.NoError(t, err)
	defer x.Close()
	assert.Equal(t, schema, x.Path())

	err = x.Validate([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<mets xmlns="http://www.loc.gov/METS/"><file ID="a" SIZE="1"/></mets>`))
	assert.NoError(t, err)
}

func TestXSD_SchemaError(t *testing.T) {
	x, err := NewXSD(writeSchema(t))
	require.NoError(t, err)
	defer x.Close()

	err = x.Validate([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<mets xmlns="http://www.loc.gov/METS/"><file ID="a" SIZE="big"/></mets>`))
	var verr *Error
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, KindSchema, verr.Kind)
	assert.NotEmpty(t, verr.Details)
}

func TestXSD_SyntaxError(t *testing.T) {
	x, err := NewXSD(writeSchema(t))
	require.NoError(t, err)
	defer x.Close()

	err = x.Validate([]byte(`<mets xmlns="http://www.loc.gov/METS/"><file ID="a">`))
	var verr *Error
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, KindSyntax, verr.Kind)
}

func TestXSD_Closed(t *testing.T) {
	x, err := NewXSD(writeSchema(t))
	require.NoError(t, err)
	x.Close()
	x.Close()

	assert.Error(t, x.Validate([]byte(`<mets xmlns="http://www.loc.gov/METS/"/>`)))
}

func TestNewXSD_BadSchema(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.xsd")
	require.NoError(t, os.WriteFile(p, []byte("<not a schema"), 0o644))

	_, err := NewXSD(p)
	assert.Error(t, err)
}

type fakeValidator struct{ err error }

func (f fakeValidator) Validate([]byte) error { return f.err }

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		v      Validator
		status Status
		failed bool
	}{
		{"nil validator", nil, StatusSkipped, false},
		{"valid", fakeValidator{}, StatusValid, false},
		{"syntax", fakeValidator{&Error{Kind: KindSyntax, Message: "boom"}}, StatusSyntaxError, true},
		{"schema", fakeValidator{&Error{Kind: KindSchema, Line: 3, Message: "bad", Details: []string{"line 3: bad"}}}, StatusSchemaError, true},
		{"other", fakeValidator{errors.New("libxml2 gone")}, StatusError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := Check(tt.v, StagePost, []byte("<x/>"), discard())
			assert.Equal(t, StagePost, rep.Stage)
			assert.Equal(t, tt.status, rep.Status)
			assert.Equal(t, tt.failed, rep.Failed())
		})
	}
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "schema error at line 4: nope", (&Error{Kind: KindSchema, Line: 4, Message: "nope"}).Error())
	assert.Equal(t, "syntax error: eof", (&Error{Kind: KindSyntax, Message: "eof"}).Error())
}
