package schema_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/batchql"
	"github.com/syssam/batchql/schema"
	"github.com/syssam/batchql/schema/field"
)

const mappingYAML = `
naming: snake_case
plural_tables: true
entities:
  - name: Item
    filter: 'Quantity >= 0'
    columns:
      - {member: ItemId, type: int, key: true}
      - {member: Name, type: string}
      - {member: Quantity, type: int}
      - {member: Kind, type: int, converter: enum_string, converter_args: [Small, Large]}
      - {column: Tenant, type: string, shadow: true}
  - name: Person
    table: people
    discriminator: Discriminator
    columns:
      - {member: PersonId, type: int}
      - {member: FirstName, type: string}
  - name: Student
    base: Person
    inheritance: single_table
    discriminator_value: S
    columns:
      - {member: Subject, type: string}
`

func writeMapping(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRegistry(t *testing.T) {
	reg, err := schema.LoadRegistry(writeMapping(t, mappingYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"Item", "Person", "Student"}, reg.Entities())

	item, err := reg.Resolve("Item")
	require.NoError(t, err)
	assert.Equal(t, "items", item.Table.Name)
	assert.Equal(t, []string{"item_id", "name", "quantity", "kind", "Tenant"}, columnNames(item))
	assert.Equal(t, []string{"item_id"}, item.Keys)
	assert.Equal(t, "Quantity >= 0", item.Filter.String())
	kind, ok := item.Member("Kind")
	require.True(t, ok)
	assert.Equal(t, field.TypeString, kind.StoreType())
	_, ok = item.Shadow("Tenant")
	assert.True(t, ok)

	student, err := reg.Resolve("Student")
	require.NoError(t, err)
	assert.Equal(t, "people", student.Table.Name)
	assert.Equal(t, `shadow(Discriminator) == "S"`, student.Filter.String())
	assert.Equal(t, []string{"person_id"}, student.Keys)
}

func TestMappingErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "syntax",
			yaml: "entities: [",
			want: "schema: parsing mapping",
		},
		{
			name: "naming",
			yaml: "naming: kebab",
			want: `unknown naming "kebab"`,
		},
		{
			name: "type",
			yaml: "entities:\n  - name: A\n    columns:\n      - {member: X, type: decimal}\n",
			want: "invalid mapping for A",
		},
		{
			name: "filter",
			yaml: "entities:\n  - name: A\n    filter: 'X >'\n    columns:\n      - {member: X, type: int}\n",
			want: "filter:",
		},
		{
			name: "converter",
			yaml: "entities:\n  - name: A\n    columns:\n      - {member: X, type: int, converter: rot13}\n",
			want: "invalid mapping for A",
		},
		{
			name: "inheritance",
			yaml: "entities:\n  - name: A\n    base: B\n    inheritance: joined\n",
			want: `unknown inheritance "joined"`,
		},
		{
			name: "member",
			yaml: "entities:\n  - name: A\n    columns:\n      - {column: X, type: int}\n",
			want: `column "X" has no member`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.LoadRegistry(writeMapping(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMappingDefinitions(t *testing.T) {
	m, err := schema.ParseMapping([]byte(mappingYAML))
	require.NoError(t, err)
	ents, err := m.Definitions()
	require.NoError(t, err)
	require.Len(t, ents, 3)
	person := ents[1]
	disc := person.Field("Discriminator")
	require.NotNil(t, disc)
	assert.True(t, disc.Shadow)
	assert.False(t, disc.Nullable)
	assert.True(t, person.Field("PersonId").Key)

	_, err = schema.LoadMapping(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	m.Entities = append(m.Entities, schema.EntityMapping{})
	_, err = m.Definitions()
	assert.True(t, batchql.IsMappingError(err))
}
