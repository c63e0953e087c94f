package handlers

import (
	"github.com/bestruirui/tollfree/internal/fanout"
	"github.com/bestruirui/tollfree/internal/inspector"
	"github.com/bestruirui/tollfree/internal/ledger"
	"github.com/bestruirui/tollfree/internal/scanner"
	"gorm.io/gorm"
)

// Deps wires the handlers package to the components assembled at startup.
// Handlers are registered via init() (see router.RegisterAll), so they
// cannot take constructor arguments; SetDeps is called once from cmd/
// before the server starts serving.
type Deps struct {
	Scanner   *scanner.Scanner
	Router    *fanout.Router
	Ledger    *ledger.Ledger
	Inspector *inspector.Inspector
	DB        *gorm.DB
}

var deps Deps

func SetDeps(d Deps) {
	deps = d
}
