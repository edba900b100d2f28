// File: internal/form/js.go
package form

import "fmt"

// The vendor form is an ASP.NET WebForms page: most inputs only commit their
// value server-side after an input+change event pair, and the date fields
// additionally re-render themselves on Enter. The builders below produce the
// scripts that drive that machinery; they return booleans so the driver can
// distinguish "element missing" from "script failed".

// setValueByIDScript writes a value straight into an element's value property
// and fires the event pair the page's validators listen for.
func setValueByIDScript(id, value string) string {
	return fmt.Sprintf(`(() => {
	const el = document.getElementById(%q);
	if (!el) return false;
	el.value = %q;
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})()`, id, value)
}

// readValueByIDScript reads back an element's current value, empty string if
// the element is gone.
func readValueByIDScript(id string) string {
	return fmt.Sprintf(`(() => {
	const el = document.getElementById(%q);
	return el ? el.value : "";
})()`, id)
}

// blurFieldScript fires the blur handlers hanging off an element and drops
// focus, which is what commits a WebForms field that validates on focusout.
func blurFieldScript(id string) string {
	return fmt.Sprintf(`(() => {
	const el = document.getElementById(%q);
	if (!el) return false;
	el.dispatchEvent(new Event('blur', { bubbles: true }));
	el.blur();
	return true;
})()`, id)
}

// clearFieldScript empties a field and fires the event pair. First rung of
// the clearing ladder.
func clearFieldScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%q);
	if (!el) return false;
	el.value = "";
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})()`, selector)
}

// clickRadioScript checks a radio input by id and fires its click handler,
// which is what triggers the WebForms postback wiring.
func clickRadioScript(id string) string {
	return fmt.Sprintf(`(() => {
	const el = document.getElementById(%q);
	if (!el) return false;
	el.checked = true;
	el.click();
	return true;
})()`, id)
}

// autocompleteMarker is the temporary attribute used to address the nth
// autocomplete input with a stable CSS selector. The inputs carry no usable
// ids of their own and their DOM order is the only contract the page offers.
const autocompleteMarker = "data-autofill-target"

// markedAutocompleteSelector matches whichever input currently carries the
// marker.
const markedAutocompleteSelector = "[" + autocompleteMarker + "='1']"

// markNthAutocompleteScript moves the marker onto the nth visible
// .ui-autocomplete-input (zero-based), clearing it from any previous holder.
func markNthAutocompleteScript(index int) string {
	return fmt.Sprintf(`(() => {
	document.querySelectorAll("[%s]").forEach(el => el.removeAttribute(%q));
	const fields = Array.from(document.querySelectorAll(".ui-autocomplete-input"))
		.filter(el => el.offsetParent !== null);
	if (%d >= fields.length) return false;
	fields[%d].setAttribute(%q, "1");
	return true;
})()`, autocompleteMarker, autocompleteMarker, index, index, autocompleteMarker)
}

// unmarkAutocompleteScript removes the marker once the field is filled.
func unmarkAutocompleteScript() string {
	return fmt.Sprintf(`(() => {
	document.querySelectorAll("[%s]").forEach(el => el.removeAttribute(%q));
	return true;
})()`, autocompleteMarker, autocompleteMarker)
}

// countVisibleSuggestionsScript counts the dropdown entries currently shown.
// jQuery UI keeps stale menus in the DOM with display:none, so visibility
// has to be checked per element.
const countVisibleSuggestionsScript = `(() => {
	return Array.from(document.querySelectorAll(".ui-autocomplete .ui-menu-item"))
		.filter(el => el.offsetParent !== null).length;
})()`

// markedFieldValueScript reads the marked field's current content.
const markedFieldValueScript = `(() => {
	const el = document.querySelector("` + markedAutocompleteSelector + `");
	return el ? el.value : "";
})()`

// countVisibleAutocompleteFieldsScript reports how many autocomplete inputs
// the form currently shows. The charge-job fields appear one at a time as
// their predecessors are committed.
const countVisibleAutocompleteFieldsScript = `(() => {
	return Array.from(document.querySelectorAll(".ui-autocomplete-input"))
		.filter(el => el.offsetParent !== null).length;
})()`
