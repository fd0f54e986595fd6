package main

// DefaultModules lists the import paths of the first-party tollgate modules
// a generated binary blank-imports. The ops gateway registers through
// pkg/app's own import, so only add-on modules appear here. xtollgate
// includes these by default unless --only restricts the selection.
var DefaultModules = []string{
	"github.com/flemzord/tollgate/modules/approver/auto",
	"github.com/flemzord/tollgate/modules/approver/http",
	"github.com/flemzord/tollgate/modules/approver/telegram",
	"github.com/flemzord/tollgate/modules/approver/terminal",
	"github.com/flemzord/tollgate/modules/ledger/sqlite",
}
