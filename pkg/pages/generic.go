package pages

// GenericPage is an untyped 4096-byte page window for code where a page's
// role is not known in advance; it can be reinterpreted as a ConfigPage or
// a FreeListPage.
type GenericPage struct {
	data []byte
}

// AsGenericPage wraps a raw 4096-byte page window as a GenericPage view.
func AsGenericPage(data []byte) *GenericPage {
	return &GenericPage{data: data}
}

// Bytes returns the raw backing window.
func (g *GenericPage) Bytes() []byte { return g.data }

// AsConfigPage reinterprets the page as a ConfigPage.
func (g *GenericPage) AsConfigPage() *ConfigPage {
	return AsConfigPage(g.data)
}

// AsFreeListPage reinterprets the page as a FreeListPage.
func (g *GenericPage) AsFreeListPage() *FreeListPage {
	return AsFreeListPage(g.data)
}

// ConfigPageAsGeneric demotes a ConfigPage back to a GenericPage, for code
// that only needs to move bytes around without interpreting fields.
func ConfigPageAsGeneric(c *ConfigPage) *GenericPage {
	return AsGenericPage(c.data)
}

// FreeListPageAsGeneric demotes a FreeListPage back to a GenericPage.
func FreeListPageAsGeneric(f *FreeListPage) *GenericPage {
	return AsGenericPage(f.data)
}
