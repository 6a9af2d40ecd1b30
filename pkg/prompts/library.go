package prompts

// Library defines the interface for the complete prompt library.
type Library interface {
	Cypher() CypherPrompt
	Diagnose() DiagnosePrompt
}

// LibraryImpl implements the Library interface.
type LibraryImpl struct {
	cypher   CypherPrompt
	diagnose DiagnosePrompt
}

func (l *LibraryImpl) Cypher() CypherPrompt     { return l.cypher }
func (l *LibraryImpl) Diagnose() DiagnosePrompt { return l.diagnose }

// NewLibrary creates a new prompt library instance.
func NewLibrary() Library {
	return &LibraryImpl{
		cypher:   NewCypherVersions(),
		diagnose: NewDiagnoseVersions(),
	}
}

// DefaultLibrary is the default prompt library instance.
var DefaultLibrary = NewLibrary()
