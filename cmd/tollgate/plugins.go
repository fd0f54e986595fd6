package main

// The stock binary compiles in every in-tree module. Binaries composed by
// xtollgate generate their own import set instead.
import (
	_ "github.com/flemzord/tollgate/internal/gateway"
	_ "github.com/flemzord/tollgate/modules/approver/auto"
	_ "github.com/flemzord/tollgate/modules/approver/http"
	_ "github.com/flemzord/tollgate/modules/approver/telegram"
	_ "github.com/flemzord/tollgate/modules/approver/terminal"
	_ "github.com/flemzord/tollgate/modules/ledger/sqlite"
)
