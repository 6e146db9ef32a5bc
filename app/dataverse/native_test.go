// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package dataverse

import (
	"encoding/json"
	"migration/app/tree"
	"reflect"
	"testing"
)

func decodeJSON(t *testing.T, b []byte) map[string]interface{} {
	t.Helper()
	m := map[string]interface{}{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("invalid json %s: %v", b, err)
	}
	return m
}

func fieldsOf(t *testing.T, doc map[string]interface{}, block string) map[string]interface{} {
	t.Helper()
	version := doc["datasetVersion"].(map[string]interface{})
	blocks := version["metadataBlocks"].(map[string]interface{})
	b, ok := blocks[block].(map[string]interface{})
	if !ok {
		t.Fatalf("block %v missing: %v", block, blocks)
	}
	res := map[string]interface{}{}
	for _, f := range b["fields"].([]interface{}) {
		field := f.(map[string]interface{})
		res[field["typeName"].(string)] = field
	}
	return res
}

func TestDatasetJSON(t *testing.T) {
	md := tree.Metadata{
		"title":                  tree.String("My Study"),
		"author":                 tree.Structured{V: []interface{}{map[string]interface{}{"authorName": "Doe, Jane", "authorIdentifierScheme": "ORCID"}}},
		"kindOfData":             tree.Structured{V: []interface{}{"Survey data"}},
		"geographicCoverage":     tree.Structured{V: []interface{}{map[string]interface{}{"country": "Austria"}}},
		"targetSampleActualSize": tree.Structured{V: json.Number("1000")},
		"series":                 tree.Structured{V: map[string]interface{}{"seriesName": "ISSP"}},
		"license":                tree.String("NONE"),
		"unknownField":           tree.String("x"),
	}
	b, unknown, err := DatasetJSON(md)
	if err != nil {
		t.Fatalf("DatasetJSON: %v", err)
	}
	if !reflect.DeepEqual(unknown, []string{"unknownField"}) {
		t.Errorf("unknown = %v", unknown)
	}
	doc := decodeJSON(t, b)
	version := doc["datasetVersion"].(map[string]interface{})
	if version["license"] != "NONE" {
		t.Errorf("license = %v", version["license"])
	}

	citation := fieldsOf(t, doc, "citation")
	title := citation["title"].(map[string]interface{})
	if title["value"] != "My Study" || title["typeClass"] != "primitive" || title["multiple"] != false {
		t.Errorf("title = %v", title)
	}
	author := citation["author"].(map[string]interface{})
	entry := author["value"].([]interface{})[0].(map[string]interface{})
	scheme := entry["authorIdentifierScheme"].(map[string]interface{})
	if scheme["typeClass"] != "controlledVocabulary" || scheme["value"] != "ORCID" {
		t.Errorf("authorIdentifierScheme = %v", scheme)
	}
	kind := citation["kindOfData"].(map[string]interface{})
	if !reflect.DeepEqual(kind["value"], []interface{}{"Survey data"}) {
		t.Errorf("kindOfData = %v", kind)
	}
	series := citation["series"].(map[string]interface{})
	if _, ok := series["value"].(map[string]interface{})["seriesName"]; !ok {
		t.Errorf("series = %v", series)
	}

	geo := fieldsOf(t, doc, "geospatial")
	if _, ok := geo["geographicCoverage"]; !ok {
		t.Errorf("geospatial = %v", geo)
	}
	social := fieldsOf(t, doc, "socialscience")
	sample := social["targetSampleSize"].(map[string]interface{})
	actual := sample["value"].(map[string]interface{})["targetSampleActualSize"].(map[string]interface{})
	if actual["value"] != "1000" {
		t.Errorf("targetSampleSize = %v", sample)
	}
}

func TestDatasetJSONInvalidCompound(t *testing.T) {
	md := tree.Metadata{"author": tree.Structured{V: []interface{}{"just a name"}}}
	if _, _, err := DatasetJSON(md); err == nil {
		t.Error("expected error")
	}
}

func TestEditFieldsJSON(t *testing.T) {
	md := tree.Metadata{
		"geographicCoverage": tree.Structured{V: []interface{}{map[string]interface{}{"country": "Austria", "otherGeographicCoverage": "Vienna"}}},
		"title":              tree.String("ignored"),
	}
	b, err := EditFieldsJSON(md, []string{"geographicCoverage"})
	if err != nil {
		t.Fatal(err)
	}
	doc := decodeJSON(t, b)
	fields := doc["fields"].([]interface{})
	if len(fields) != 1 {
		t.Fatalf("fields = %v", fields)
	}
	field := fields[0].(map[string]interface{})
	entry := field["value"].([]interface{})[0].(map[string]interface{})
	country := entry["country"].(map[string]interface{})
	if field["typeName"] != "geographicCoverage" || country["typeName"] != "country" || country["value"] != "Austria" {
		t.Errorf("field = %v", field)
	}
	if _, err := EditFieldsJSON(md, []string{"universe"}); err == nil {
		t.Error("expected error when no field is set")
	}
}

func TestDatafileJSON(t *testing.T) {
	df := &tree.Datafile{
		Id:         "F1",
		Filename:   "f.sav",
		Categories: []string{"Data"},
		Metadata:   tree.Metadata{"description": tree.String("Main data"), "restrict": tree.Bool(true)},
	}
	b, err := DatafileJSON(df, "doi:10.11587/ABC123")
	if err != nil {
		t.Fatal(err)
	}
	doc := decodeJSON(t, b)
	want := map[string]interface{}{
		"pid":         "doi:10.11587/ABC123",
		"filename":    "f.sav",
		"description": "Main data",
		"categories":  []interface{}{"Data"},
		"restrict":    true,
	}
	if !reflect.DeepEqual(doc, want) {
		t.Errorf("datafile json = %v", doc)
	}
}
