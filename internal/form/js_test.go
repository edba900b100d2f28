// File: internal/form/js_test.go
package form

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetValueByIDScriptQuotesArguments(t *testing.T) {
	script := setValueByIDScript("MainContent_txtTrxDate", `14/07/2025`)
	assert.Contains(t, script, `getElementById("MainContent_txtTrxDate")`)
	assert.Contains(t, script, `el.value = "14/07/2025"`)
	assert.Contains(t, script, "dispatchEvent(new Event('input'")
	assert.Contains(t, script, "dispatchEvent(new Event('change'")
}

func TestSetValueByIDScriptEscapesQuotes(t *testing.T) {
	script := setValueByIDScript("id", `va"lue`)
	// A raw embedded quote would break out of the string literal.
	assert.NotContains(t, script, `= "va"lue"`)
	assert.Contains(t, script, `va\"lue`)
}

func TestBlurFieldScript(t *testing.T) {
	script := blurFieldScript("MainContent_txtHours")
	assert.Contains(t, script, `getElementById("MainContent_txtHours")`)
	assert.Contains(t, script, "dispatchEvent(new Event('blur'")
	assert.Contains(t, script, "el.blur()")
}

func TestMarkNthAutocompleteScript(t *testing.T) {
	script := markNthAutocompleteScript(2)
	assert.Contains(t, script, "fields[2]")
	assert.Contains(t, script, autocompleteMarker)
	// Older markers must be cleared so only one field matches at a time.
	assert.Contains(t, script, "removeAttribute")
	// Hidden inputs are excluded from the positional count.
	assert.Contains(t, script, "offsetParent !== null")
}

func TestMarkedSelectorMatchesMarkerAttribute(t *testing.T) {
	assert.True(t, strings.Contains(markedAutocompleteSelector, autocompleteMarker))
}

func TestClickRadioScript(t *testing.T) {
	script := clickRadioScript("MainContent_rblOT_1")
	assert.Contains(t, script, `getElementById("MainContent_rblOT_1")`)
	assert.Contains(t, script, "el.checked = true")
	assert.Contains(t, script, "el.click()")
}
