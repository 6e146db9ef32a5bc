// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package core

import (
	"fmt"
	"migration/app/history"
	"migration/app/oais"
	"os"
	"slices"
)

// State is the lifecycle position of a dataset, derived from its ledger and staging tree.
type State int

const (
	Imported State = iota
	StagingComplete
	MetadataEmitted
	Uploaded
	Published
	Updated
	Deleted
	Destroyed
)

var stateNames = []string{"imported", "staging complete", "metadata emitted", "uploaded", "published", "updated", "deleted", "destroyed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) Terminal() bool {
	return s == Deleted || s == Destroyed
}

type Operation int

const (
	EmitDatasetJSON Operation = iota
	CreateDataset
	EmitDatafileJSON
	UploadDatafile
	PublishDataset
	UpdateDataset
	DestroyDataset
	DeleteDataset
)

var operationNames = []string{"emit dataset json", "create dataset", "emit datafile json", "upload datafile", "publish dataset", "update dataset", "destroy dataset", "delete dataset"}

func (op Operation) String() string {
	if int(op) < len(operationNames) {
		return operationNames[op]
	}
	return fmt.Sprintf("operation(%d)", int(op))
}

// transitions lists the states each operation may start from.
var transitions = map[Operation][]State{
	EmitDatasetJSON:  {StagingComplete, MetadataEmitted, Uploaded, Published, Updated},
	CreateDataset:    {StagingComplete, MetadataEmitted},
	EmitDatafileJSON: {Uploaded, Published, Updated},
	UploadDatafile:   {Uploaded, Published, Updated},
	PublishDataset:   {StagingComplete, MetadataEmitted, Uploaded, Updated},
	UpdateDataset:    {Uploaded, Published, Updated},
	DestroyDataset:   {Uploaded, Published, Updated},
	DeleteDataset:    {Uploaded, Published, Updated},
}

// Decision is the outcome of a guard. A refused operation is skipped, not retried.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func refuse(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// DatasetState derives the state of a dataset. A nil record means no staging tree was set up.
func DatasetState(r *history.Record, datasetDir string) State {
	switch {
	case r == nil:
		return Imported
	case r.DestructionDate != "":
		return Destroyed
	case r.DeletionDate != "":
		return Deleted
	case len(r.UpdateDate) > 0:
		return Updated
	case r.PublicationDate != "":
		return Published
	case r.UploadDate != "":
		return Uploaded
	}
	if _, err := os.Stat(oais.DatasetJSONPath(datasetDir, r.DatasetId)); err == nil {
		return MetadataEmitted
	}
	return StagingComplete
}

// Guard checks the transition table for op starting in state.
func Guard(op Operation, state State) Decision {
	if slices.Contains(transitions[op], state) {
		return allow()
	}
	switch {
	case state.Terminal():
		return refuse("dataset is %v", state)
	case state == Imported:
		return refuse("staging tree not set up")
	case op == CreateDataset:
		return refuse("already uploaded")
	case op == PublishDataset && state == Published:
		return refuse("already published")
	case state < Uploaded:
		return refuse("not uploaded")
	}
	return refuse("%v not allowed when %v", op, state)
}

// pidOperations address the dataset by its persistent identifier.
var pidOperations = map[Operation]bool{
	EmitDatafileJSON: true,
	UploadDatafile:   true,
	UpdateDataset:    true,
	DestroyDataset:   true,
	DeleteDataset:    true,
}

// Check guards op for the dataset with ledger r. On top of the transition table it refuses
// the operations that need a pid while the ledger has none, as after publishing a dataset
// that was never created by this migration.
func Check(op Operation, r *history.Record, datasetDir string) Decision {
	d := Guard(op, DatasetState(r, datasetDir))
	if d.Allowed && pidOperations[op] && (r == nil || r.Pid == "") {
		return refuse("no pid in ledger")
	}
	return d
}
