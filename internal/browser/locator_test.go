// File: internal/browser/locator_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocatorSelector(t *testing.T) {
	tests := []struct {
		name    string
		locator Locator
		wantSel string
	}{
		{"id gains hash prefix", ByID("MainContent_txtTrxDate"), "#MainContent_txtTrxDate"},
		{"name becomes attribute query", ByName("ctl00$MainContent$btnNew"), `[name="ctl00$MainContent$btnNew"]`},
		{"css passes through", ByCSS(".ui-autocomplete-input"), ".ui-autocomplete-input"},
		{"xpath passes through", ByXPath("//input[@value='Add']"), "//input[@value='Add']"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, opt := tt.locator.Selector()
			assert.Equal(t, tt.wantSel, sel)
			assert.NotNil(t, opt)
		})
	}
}

func TestLocatorString(t *testing.T) {
	assert.Equal(t, "id=MainContent_txtHours", ByID("MainContent_txtHours").String())
	assert.Equal(t, "css=.ui-menu-item", ByCSS(".ui-menu-item").String())
}
