package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/storeimport/internal/core"
)

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   rune
	}{
		{"comma", "a,b,c", ','},
		{"semicolon without commas", "a;b;c", ';'},
		{"tab", "a\tb\tc", '\t'},
		{"pipe", "a|b|c", '|'},
		{"majority wins", "a;b;c,d", ';'},
		{"tie goes to comma", "a,b;c", ','},
		{"tie between tab and semicolon", "a\tb;c", '\t'},
		{"single column", "store_url", ','},
		{"empty", "", ','},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, string(tt.want), string(DetectDelimiter(tt.header)))
		})
	}
}

func TestParseDelimited_Basic(t *testing.T) {
	data := []byte("url,name,phone\nshop.example,,0551234567\n,Missing URL,0550000000\nshop.example,Shop,0559999999\n")

	res, err := ParseDelimited(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"url", "name", "phone"}, res.Headers)
	assert.Equal(t, 3, res.TotalRows)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, core.RawRow{"url": "shop.example", "name": "", "phone": "0551234567"}, res.Rows[0])
	assert.Equal(t, "Missing URL", res.Rows[1]["name"])
	assert.Equal(t, "Shop", res.Rows[2]["name"])
	assert.Equal(t, ",", res.Meta.Delimiter)
	assert.Equal(t, EncodingUTF8, res.Meta.Encoding)
	assert.Equal(t, core.SourceCSV, res.Meta.Kind)
}

func TestParseDelimited_SemicolonAndBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("store_url;store_name\r\nshop.example;Shop\r\n")...)

	res, err := ParseDelimited(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"store_url", "store_name"}, res.Headers)
	assert.Equal(t, ";", res.Meta.Delimiter)
	assert.Equal(t, "Shop", res.Rows[0]["store_name"])
}

func TestParseDelimited_QuotedFields(t *testing.T) {
	data := []byte("store_url,notes\nshop.example,\"said \"\"call later\"\", busy\"\nb.example,\"two\nlines\"\n")

	res, err := ParseDelimited(data)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	assert.Equal(t, `said "call later", busy`, res.Rows[0]["notes"])
	assert.Equal(t, "two\nlines", res.Rows[1]["notes"])
}

func TestParseDelimited_BlankLinesIgnored(t *testing.T) {
	data := []byte("\n\nstore_url,city\n\nshop.example,Riyadh\n , \nb.example,Jeddah\n\n")

	res, err := ParseDelimited(data)
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, "Riyadh", res.Rows[0]["city"])
	assert.Equal(t, "Jeddah", res.Rows[1]["city"])
}

func TestParseDelimited_Windows1256Fallback(t *testing.T) {
	// "store_name\nمتجر\n" encoded as Windows-1256.
	data := []byte("store_name\n\xe3\xca\xcc\xd1\n")

	res, err := ParseDelimited(data)
	require.NoError(t, err)

	assert.Equal(t, EncodingWindows1256, res.Meta.Encoding)
	assert.Equal(t, "متجر", res.Rows[0]["store_name"])
}

func TestParseDelimited_HeaderCleanup(t *testing.T) {
	data := []byte("url,,url,Notes\na.example,x,b.example,n\n")

	res, err := ParseDelimited(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"url", "column_2", "url_2", "Notes"}, res.Headers)
	assert.Equal(t, "b.example", res.Rows[0]["url_2"])
}

func TestParseDelimited_RaggedRows(t *testing.T) {
	data := []byte("a,b,c\n1\n1,2,3,4\n")

	res, err := ParseDelimited(data)
	require.NoError(t, err)

	assert.Equal(t, core.RawRow{"a": "1", "b": "", "c": ""}, res.Rows[0])
	assert.Equal(t, core.RawRow{"a": "1", "b": "2", "c": "3"}, res.Rows[1])
}

func TestParseDelimited_EmptyOrInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"only whitespace", "  \n \n"},
		{"header only", "store_url,store_name\n"},
		{"header only with blank lines", "store_url\n\n\n"},
		{"formula-blank header cells", `="",=""` + "\nx,y\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDelimited([]byte(tt.data))
			kind, ok := core.SourceErrorKindOf(err)
			require.True(t, ok, "expected SourceError, got %v", err)
			assert.Equal(t, core.EmptyOrInvalidFile, kind)
		})
	}
}
