package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "id,bones,count,power,name,desc,eob,extra,rec_ru,rec_en\n"

func TestLoad(t *testing.T) {
	data := header +
		`1,"C1, T12 L3",4,10W,Рассвет,лёгкость,"ЛР, ЗД",x,Гуляйте,Walk` + "\n" +
		`2,S7,,5 W,Закат,тяжесть,СМФБ,x,Спите,Sleep` + "\n"

	cat, err := Load(strings.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 2, cat.Len())

	c1, ok := cat.Card(1)
	require.True(t, ok)
	assert.Equal(t, []string{"C1", "T12", "L3"}, c1.Bones)
	assert.Equal(t, 10, c1.Power)
	assert.Equal(t, 4, c1.Count)
	assert.Equal(t, []string{TagLR, TagZD}, c1.Tags)
	assert.Equal(t, "Рассвет", c1.Name)
	assert.Equal(t, "Гуляйте", c1.RecommendationRU)
	assert.Equal(t, "Walk", c1.RecommendationEN)
	assert.True(t, c1.HasTag(TagZD))
	assert.False(t, c1.HasTag(TagSM))

	c2, ok := cat.Card(2)
	require.True(t, ok)
	assert.Equal(t, 5, c2.Power)
	assert.Equal(t, 0, c2.Count)
	assert.Equal(t, []string{TagSM, TagFB}, c2.Tags)

	_, ok = cat.Card(3)
	assert.False(t, ok)
	assert.Equal(t, []int{1, 2}, cat.IDs())
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		row   string
		field string
	}{
		{"power without digits", `1,C1,1,W,n,d,ЛР,x,r,e`, "power"},
		{"id out of range", `50,C1,1,1,n,d,ЛР,x,r,e`, "id"},
		{"id not a number", `x,C1,1,1,n,d,ЛР,x,r,e`, "id"},
		{"unknown tag", `1,C1,1,1,n,d,ЖЖ,x,r,e`, "tags"},
		{"short row", `1,C1,1,1`, "columns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(header + tt.row + "\n"))
			var le *LoadError
			require.True(t, errors.As(err, &le), "got %v", err)
			assert.Equal(t, 2, le.Row)
			assert.Equal(t, tt.field, le.Field)
		})
	}
}

func TestLoadDuplicateID(t *testing.T) {
	data := header +
		`1,C1,1,1,n,d,ЛР,x,r,e` + "\n" +
		`1,C2,1,2,n,d,ЗД,x,r,e` + "\n"
	_, err := Load(strings.NewReader(data))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 3, le.Row)
}

func TestLoadEmpty(t *testing.T) {
	_, err := Load(strings.NewReader(header))
	var le *LoadError
	require.ErrorAs(t, err, &le)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.csv"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.csv")
	require.NoError(t, os.WriteFile(path, []byte(header+`7,C3,1,3W,n,d,ФБ,x,r,e`+"\n"), 0o644))
	cat, err := LoadFile(path)
	require.NoError(t, err)
	c, ok := cat.Card(7)
	require.True(t, ok)
	assert.Equal(t, 3, c.Power)
}
