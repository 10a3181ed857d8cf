package cli_test

import (
	"testing"

	"github.com/m-mizutani/fireconf"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/medic/pkg/cli"
)

func TestDefineFirestoreIndexes(t *testing.T) {
	t.Run("incidents by state in creation order", func(t *testing.T) {
		config := cli.DefineFirestoreIndexes("")
		gt.A(t, config.Collections).Length(1)

		col := config.Collections[0]
		gt.Equal(t, col.Name, "incidents")
		gt.A(t, col.Indexes).Length(1)

		idx := col.Indexes[0]
		gt.Equal(t, idx.QueryScope, fireconf.QueryScopeCollection)
		gt.A(t, idx.Fields).Length(2)
		gt.Equal(t, idx.Fields[0].Path, "State")
		gt.Equal(t, idx.Fields[0].Order, fireconf.OrderAscending)
		gt.Equal(t, idx.Fields[1].Path, "CreatedAt")
		gt.Equal(t, idx.Fields[1].Order, fireconf.OrderAscending)
	})

	t.Run("collection prefix is applied", func(t *testing.T) {
		config := cli.DefineFirestoreIndexes("test_")
		gt.Equal(t, config.Collections[0].Name, "test_incidents")
	})
}
