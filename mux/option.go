package mux

// Option configures a Mux at construction time.
type Option func(m *Mux)

// Handle returns an Option that registers h for the symbol (cd, name). It
// panics if applied to a Mux that already has a handler registered for that
// symbol.
func Handle(cd, name string, h ProcedureHandler) Option {
	return func(m *Mux) {
		if h == nil {
			panic("mux: nil handler")
		}
		m.Handle(cd, name, h)
	}
}

// HandleFunc returns an Option that registers f for the symbol (cd, name).
func HandleFunc(cd, name string, f ProcedureHandlerFunc) Option {
	return Handle(cd, name, f)
}
