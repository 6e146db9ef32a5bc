// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package dataverse

import (
	"encoding/json"
	"fmt"
	"maps"
	"migration/app/tree"
	"slices"
	"strconv"
)

const (
	primitive  = "primitive"
	vocabulary = "controlledVocabulary"
	compound   = "compound"
)

type fieldSpec struct {
	block     string
	typeClass string
	multiple  bool
}

var blockNames = map[string]string{
	"citation":      "Citation Metadata",
	"geospatial":    "Geospatial Metadata",
	"socialscience": "Social Science and Humanities Metadata",
}

var fieldSpecs = map[string]fieldSpec{
	// citation
	"title":                   {"citation", primitive, false},
	"subtitle":                {"citation", primitive, false},
	"alternativeTitle":        {"citation", primitive, false},
	"alternativeURL":          {"citation", primitive, false},
	"otherId":                 {"citation", compound, true},
	"author":                  {"citation", compound, true},
	"datasetContact":          {"citation", compound, true},
	"dsDescription":           {"citation", compound, true},
	"subject":                 {"citation", vocabulary, true},
	"keyword":                 {"citation", compound, true},
	"topicClassification":     {"citation", compound, true},
	"publication":             {"citation", compound, true},
	"notesText":               {"citation", primitive, false},
	"language":                {"citation", vocabulary, true},
	"producer":                {"citation", compound, true},
	"productionDate":          {"citation", primitive, false},
	"productionPlace":         {"citation", primitive, false},
	"contributor":             {"citation", compound, true},
	"grantNumber":             {"citation", compound, true},
	"distributor":             {"citation", compound, true},
	"distributionDate":        {"citation", primitive, false},
	"depositor":               {"citation", primitive, false},
	"dateOfDeposit":           {"citation", primitive, false},
	"timePeriodCovered":       {"citation", compound, true},
	"dateOfCollection":        {"citation", compound, true},
	"kindOfData":              {"citation", primitive, true},
	"series":                  {"citation", compound, false},
	"software":                {"citation", compound, true},
	"relatedMaterial":         {"citation", primitive, true},
	"relatedDatasets":         {"citation", primitive, true},
	"otherReferences":         {"citation", primitive, true},
	"dataSources":             {"citation", primitive, true},
	"originOfSources":         {"citation", primitive, false},
	"characteristicOfSources": {"citation", primitive, false},
	"accessToSources":         {"citation", primitive, false},
	// geospatial
	"geographicCoverage":    {"geospatial", compound, true},
	"geographicUnit":        {"geospatial", primitive, true},
	"geographicBoundingBox": {"geospatial", compound, true},
	// socialscience
	"unitOfAnalysis":             {"socialscience", primitive, true},
	"universe":                   {"socialscience", primitive, true},
	"timeMethod":                 {"socialscience", primitive, false},
	"dataCollector":              {"socialscience", primitive, false},
	"collectorTraining":          {"socialscience", primitive, false},
	"frequencyOfDataCollection":  {"socialscience", primitive, false},
	"samplingProcedure":          {"socialscience", primitive, false},
	"targetSampleSize":           {"socialscience", compound, false},
	"deviationsFromSampleDesign": {"socialscience", primitive, false},
	"collectionMode":             {"socialscience", primitive, false},
	"researchInstrument":         {"socialscience", primitive, false},
	"dataCollectionSituation":    {"socialscience", primitive, false},
	"actionsToMinimizeLoss":      {"socialscience", primitive, false},
	"controlOperations":          {"socialscience", primitive, false},
	"weighting":                  {"socialscience", primitive, false},
	"cleaningOperations":         {"socialscience", primitive, false},
	"datasetLevelErrorNotes":     {"socialscience", primitive, false},
	"responseRate":               {"socialscience", primitive, false},
	"samplingErrorEstimates":     {"socialscience", primitive, false},
	"otherDataAppraisal":         {"socialscience", primitive, false},
	"socialScienceNotes":         {"socialscience", compound, false},
}

// vocabularySubfields are the compound children with a controlled vocabulary.
var vocabularySubfields = map[string]bool{
	"authorIdentifierScheme": true,
	"publicationIDType":      true,
	"contributorType":        true,
	"country":                true,
}

// versionKeys are dataset version attributes outside the metadata blocks.
var versionKeys = map[string]bool{
	"license":                    true,
	"termsOfUse":                 true,
	"termsOfAccess":              true,
	"fileAccessRequest":          true,
	"dataAccessPlace":            true,
	"originalArchive":            true,
	"availabilityStatus":         true,
	"contactForAccess":           true,
	"sizeOfCollection":           true,
	"studyCompletion":            true,
	"restrictions":               true,
	"citationRequirements":       true,
	"depositorRequirements":      true,
	"conditions":                 true,
	"disclaimer":                 true,
	"confidentialityDeclaration": true,
	"specialPermissions":         true,
}

// targetSampleSize is split over two flat columns in the source tables.
var targetSampleSizeParts = []string{"targetSampleActualSize", "targetSampleSizeFormula"}

type Field struct {
	TypeName  string      `json:"typeName"`
	Multiple  bool        `json:"multiple"`
	TypeClass string      `json:"typeClass"`
	Value     interface{} `json:"value"`
}

type Block struct {
	DisplayName string  `json:"displayName"`
	Fields      []Field `json:"fields"`
}

type DatasetVersion struct {
	Attributes     map[string]interface{}
	MetadataBlocks map[string]*Block
}

func (v DatasetVersion) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{}
	for k, val := range v.Attributes {
		m[k] = val
	}
	m["metadataBlocks"] = v.MetadataBlocks
	return json.Marshal(m)
}

type NativeDataset struct {
	DatasetVersion DatasetVersion `json:"datasetVersion"`
}

// DatasetJSON renders the managed metadata of a dataset as native API JSON.
// Metadata keys that map to no known field are returned as unknown.
func DatasetJSON(metadata tree.Metadata) (b []byte, unknown []string, err error) {
	version := DatasetVersion{Attributes: map[string]interface{}{}, MetadataBlocks: map[string]*Block{}}
	sampleSize := map[string]interface{}{}
	for _, key := range slices.Sorted(maps.Keys(metadata)) {
		value := metadata[key]
		switch {
		case versionKeys[key]:
			version.Attributes[key] = scalar(raw(value))
		case slices.Contains(targetSampleSizeParts, key):
			sampleSize[key] = raw(value)
		default:
			spec, ok := fieldSpecs[key]
			if !ok {
				unknown = append(unknown, key)
				continue
			}
			field, err := spec.build(key, raw(value))
			if err != nil {
				return nil, nil, err
			}
			version.add(spec.block, field)
		}
	}
	if len(sampleSize) > 0 {
		spec := fieldSpecs["targetSampleSize"]
		field, err := spec.build("targetSampleSize", sampleSize)
		if err != nil {
			return nil, nil, err
		}
		version.add(spec.block, field)
	}
	b, err = json.Marshal(NativeDataset{DatasetVersion: version})
	return b, unknown, err
}

func (v *DatasetVersion) add(block string, field Field) {
	b, ok := v.MetadataBlocks[block]
	if !ok {
		b = &Block{DisplayName: blockNames[block]}
		v.MetadataBlocks[block] = b
	}
	b.Fields = append(b.Fields, field)
}

// EditFieldsJSON renders the named fields of metadata as the body of an editMetadata call.
func EditFieldsJSON(metadata tree.Metadata, names []string) ([]byte, error) {
	fields := []Field{}
	for _, name := range names {
		value, ok := metadata[name]
		if !ok {
			continue
		}
		spec, ok := fieldSpecs[name]
		if !ok {
			return nil, fmt.Errorf("unknown metadata field %v", name)
		}
		field, err := spec.build(name, raw(value))
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("none of the fields %v is set", names)
	}
	return json.Marshal(map[string]interface{}{"fields": fields})
}

func raw(v tree.Value) interface{} {
	switch t := v.(type) {
	case tree.String:
		return string(t)
	case tree.Bool:
		return bool(t)
	case tree.Structured:
		return t.V
	}
	return nil
}

func scalar(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func asList(v interface{}) []interface{} {
	if l, ok := v.([]interface{}); ok {
		return l
	}
	return []interface{}{v}
}

func (s fieldSpec) build(name string, v interface{}) (Field, error) {
	field := Field{TypeName: name, Multiple: s.multiple, TypeClass: s.typeClass}
	if s.typeClass != compound {
		if !s.multiple {
			field.Value = scalar(v)
			return field, nil
		}
		values := []string{}
		for _, e := range asList(v) {
			values = append(values, scalar(e))
		}
		field.Value = values
		return field, nil
	}
	entries := []map[string]Field{}
	for _, e := range asList(v) {
		obj, ok := e.(map[string]interface{})
		if !ok {
			return field, fmt.Errorf("field %v: expected an object, found %v", name, scalar(e))
		}
		entry := map[string]Field{}
		for child, childValue := range obj {
			typeClass := primitive
			if vocabularySubfields[child] {
				typeClass = vocabulary
			}
			entry[child] = Field{TypeName: child, TypeClass: typeClass, Value: scalar(childValue)}
		}
		entries = append(entries, entry)
	}
	if s.multiple {
		field.Value = entries
		return field, nil
	}
	if len(entries) != 1 {
		return field, fmt.Errorf("field %v: expected one value, found %d", name, len(entries))
	}
	field.Value = entries[0]
	return field, nil
}

type NativeDatafile struct {
	Pid            string   `json:"pid,omitempty"`
	Filename       string   `json:"filename"`
	Label          string   `json:"label,omitempty"`
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description,omitempty"`
	DirectoryLabel string   `json:"directoryLabel,omitempty"`
	Categories     []string `json:"categories,omitempty"`
	Restrict       bool     `json:"restrict"`
}

// DatafileJSON renders the jsonData of a datafile upload, tagged with the pid of its dataset.
func DatafileJSON(df *tree.Datafile, pid string) ([]byte, error) {
	md := df.Metadata
	label, _ := md.String("label")
	title, _ := md.String("title")
	description, _ := md.String("description")
	directoryLabel, _ := md.String("directoryLabel")
	return json.MarshalIndent(NativeDatafile{
		Pid:            pid,
		Filename:       df.Filename,
		Label:          label,
		Title:          title,
		Description:    description,
		DirectoryLabel: directoryLabel,
		Categories:     df.Categories,
		Restrict:       md.Bool("restrict"),
	}, "", "  ")
}
