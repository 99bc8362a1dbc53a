package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/teranos/shopper/errors"
)

const productsCSV = `product_id,product_name,aisle_id,department_id
1,Chocolate Sandwich Cookies,61,19
2,All-Seasons Salt,104,13
3,"Robust Golden Unsweetened Oolong Tea",94,7
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadCSV(t *testing.T) {
	records, err := ReadCSV(strings.NewReader(productsCSV))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "1", records[0].ID())
	assert.Equal(t, "Chocolate Sandwich Cookies", records[0].Name())
	assert.Equal(t, "Robust Golden Unsweetened Oolong Tea", records[2].Name())
	assert.Equal(t, []string{"product_id", "product_name", "aisle_id", "department_id"}, records[1].Keys())
}

func TestReadCSV_MalformedRow(t *testing.T) {
	input := "product_id,product_name\n1,Cookies\n2,Salt,extra\n"
	_, err := ReadCSV(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestReadCSV_Empty(t *testing.T) {
	records, err := ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecordJSONKeepsColumnOrder(t *testing.T) {
	r := NewRecord([]string{"product_name", "product_id"}, []string{"Oolong Tea", "3"})

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"product_name":"Oolong Tea","product_id":"3"}`, string(data))

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r.Keys(), back.Keys())
	assert.Equal(t, r.Fields(), back.Fields())
}

func TestRecordUnmarshalNonStringValues(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"product_id": 7, "organic": true, "notes": null}`), &r))

	assert.Equal(t, "7", r.ID())
	assert.Equal(t, "true", r.Get("organic"))
	v, ok := r.Lookup("notes")
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestRecordUnmarshalRejectsArrays(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`["a","b"]`), &r)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestNewRecordPadsShortRows(t *testing.T) {
	r := NewRecord([]string{"product_id", "product_name", "aisle_id"}, []string{"9"})
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, "9", r.ID())
	assert.Empty(t, r.Get("aisle_id"))
}

func TestLoad_Formats(t *testing.T) {
	ctx := context.Background()

	t.Run("csv", func(t *testing.T) {
		records, err := Load(ctx, writeFile(t, "products.csv", productsCSV))
		require.NoError(t, err)
		assert.Len(t, records, 3)
	})

	t.Run("jsonl", func(t *testing.T) {
		content := "{\"product_id\":\"1\",\"product_name\":\"Cookies\"}\n\n{\"product_id\":\"2\",\"product_name\":\"Salt\"}\n"
		records, err := Load(ctx, writeFile(t, "products.jsonl", content))
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "Salt", records[1].Name())
	})

	t.Run("xlsx", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "products.xlsx")
		f := excelize.NewFile()
		sheet := f.GetSheetName(0)
		require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"product_id", "product_name", "aisle_id"}))
		require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"1", "Cookies", "61"}))
		require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"2", "Salt"}))
		require.NoError(t, f.SaveAs(path))
		require.NoError(t, f.Close())

		records, err := Load(ctx, path)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "Cookies", records[0].Name())
		assert.Equal(t, "61", records[0].Get("aisle_id"))
		assert.Empty(t, records[1].Get("aisle_id"))
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := Load(ctx, writeFile(t, "products.parquet", "x"))
		require.Error(t, err)
		assert.True(t, errors.IsInvalidRequestError(err))
	})

	t.Run("missing", func(t *testing.T) {
		_, err := Load(ctx, filepath.Join(t.TempDir(), "nope.csv"))
		require.Error(t, err)
		assert.True(t, errors.IsNotFoundError(err))
	})
}

func TestLoad_RemoteHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/exports/products.csv" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(productsCSV))
	}))
	defer server.Close()

	records, err := Load(context.Background(), server.URL+"/exports/products.csv")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "All-Seasons Salt", records[1].Name())
}

func TestReadJSONL_BadLine(t *testing.T) {
	path := writeFile(t, "out.jsonl", "{\"a\":1}\nnot json\n")
	_, err := ReadJSONL[map[string]int](path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestShuffleIsReproducible(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}

	first := Select(items, 42, 5)
	second := Select(items, 42, 5)

	require.Len(t, first, 5)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("seed 42 selection differs between runs (-first +second):\n%s", diff)
	}

	// Input is untouched and the full shuffle is a permutation
	assert.Equal(t, "a", items[0])
	assert.ElementsMatch(t, items, Shuffle(items, 42))
}

func TestLimit(t *testing.T) {
	items := []int{1, 2, 3}
	assert.Equal(t, []int{1, 2}, Limit(items, 2))
	assert.Equal(t, items, Limit(items, 0))
	assert.Equal(t, items, Limit(items, 10))
}

func TestSample(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}

	got := Sample(items, 4, 20)
	require.Len(t, got, 4)
	assert.Equal(t, got, Sample(items, 4, 20))

	seen := map[int]bool{}
	for _, v := range got {
		assert.False(t, seen[v], "sample repeated %d", v)
		seen[v] = true
	}

	assert.Len(t, Sample(items, 20, 1), len(items))
	assert.Nil(t, Sample(items, 0, 1))
}
