package formbridge

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func formValues(t *testing.T, doc string) *Submission {
	t.Helper()
	page, err := ParsePageString(doc)
	require.NoError(t, err)
	form, err := page.Element("f")
	require.NoError(t, err)
	sub, err := form.FormValues()
	require.NoError(t, err)
	return sub
}

func TestFormValuesFollowsFormDataRules(t *testing.T) {
	sub := formValues(t, `<form id="f">
	  <input name="name" value="Ana">
	  <input name="empty">
	  <input value="no name">
	  <input name="off" value="x" disabled>
	  <input type="checkbox" name="agree">
	  <input type="checkbox" name="consent" checked>
	  <input type="radio" name="plan" value="a">
	  <input type="radio" name="plan" value="b" checked>
	  <input type="submit" name="go" value="Go">
	  <input type="file" name="upload">
	  <button name="btn" value="1">Send</button>
	  <select name="country"><option>US</option><option value="CA" selected>Canada</option></select>
	  <select name="visa"><option disabled>pick</option><option>  H-1B  </option></select>
	  <textarea name="notes">line one
line two</textarea>
	  <fieldset disabled><input name="locked" value="1"><legend>ignored</legend></fieldset>
	  <input type="hidden" name="_charset_">
	</form>`)

	assert.Equal(t, []string{"name", "empty", "consent", "plan", "country", "visa", "notes", "_charset_"}, sub.Keys())
	assert.Equal(t, map[string]string{
		"name":      "Ana",
		"empty":     "",
		"consent":   "on",
		"plan":      "b",
		"country":   "CA",
		"visa":      "H-1B",
		"notes":     "line one\nline two",
		"_charset_": "UTF-8",
	}, sub.Map())
}

func TestFormValuesLastValueWins(t *testing.T) {
	sub := formValues(t, `<form id="f">
	  <input name="a" value="1">
	  <input name="b" value="2">
	  <input name="a" value="3">
	</form>`)

	raw, err := sub.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"a":"3","b":"2"}`, string(raw))
}

func TestFormValuesIncludesAssociatedControls(t *testing.T) {
	sub := formValues(t, `<form id="f"><input name="inside" value="1"><input name="elsewhere" form="other" value="x"></form>
	<form id="other"></form>
	<input name="outside" form="f" value="2">`)

	assert.Equal(t, map[string]string{"inside": "1", "outside": "2"}, sub.Map())
}

func TestFormValuesLegendInDisabledFieldset(t *testing.T) {
	sub := formValues(t, `<form id="f"><fieldset disabled>
	  <legend><input name="first" value="1"></legend>
	  <input name="second" value="2">
	</fieldset></form>`)

	assert.Equal(t, map[string]string{"first": "1"}, sub.Map())
}

func TestFormValuesRejectsNonForm(t *testing.T) {
	page, err := ParsePageString(`<div id="f"></div>`)
	require.NoError(t, err)
	el, err := page.Element("f")
	require.NoError(t, err)

	_, err = el.FormValues()
	assert.ErrorIs(t, err, ErrNotForm)
}

func TestFillWritesPostedValues(t *testing.T) {
	page, err := ParsePageString(`<form id="f">
	  <input name="text" value="">
	  <input type="checkbox" name="agree" checked>
	  <input type="checkbox" name="extra">
	  <select name="language"><option value="es" selected>Spanish</option><option value="fr">French</option></select>
	  <textarea name="message"></textarea>
	</form>`)
	require.NoError(t, err)
	form, err := page.Element("f")
	require.NoError(t, err)

	require.NoError(t, form.Fill(url.Values{
		"text":     {"hello"},
		"extra":    {"on"},
		"language": {"fr"},
		"message":  {"I am tired"},
	}))

	sub, err := form.FormValues()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"text":     "hello",
		"extra":    "on",
		"language": "fr",
		"message":  "I am tired",
	}, sub.Map())
	assert.Equal(t, []string{"text", "agree", "extra", "language", "message"}, form.Names())
}

func TestElementStyleAndText(t *testing.T) {
	page, err := ParsePageString(`<a id="l" style="color: red; display: none">x<b>y</b></a>`)
	require.NoError(t, err)
	el, err := page.Element("l")
	require.NoError(t, err)

	assert.Equal(t, "xy", el.Text())
	assert.Equal(t, "none", el.Style("display"))

	el.SetStyle("display", "inline")
	style, _ := el.Attr("style")
	assert.Equal(t, "color: red; display: inline;", style)

	el.SetText("<not markup>")
	assert.Equal(t, "<not markup>", el.Text())
	assert.Contains(t, page.String(), "&lt;not markup&gt;")
}

func TestElementLookupQuotes(t *testing.T) {
	page, err := ParsePageString(`<p id="it's">a</p><p id='say "hi"'>b</p><p id="both'&quot;">c</p>`)
	require.NoError(t, err)

	for id, want := range map[string]string{`it's`: "a", `say "hi"`: "b", `both'"`: "c"} {
		el, err := page.Element(id)
		require.NoError(t, err, id)
		assert.Equal(t, want, el.Text())
	}

	_, err = page.Element("missing")
	assert.ErrorIs(t, err, ErrElementNotFound)
}
