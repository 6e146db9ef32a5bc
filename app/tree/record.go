// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package tree

// Dataset is one row of the datasets table.
type Dataset struct {
	Id          string     `json:"id"`
	DataverseId string     `json:"dataverseId"` // parent collection alias
	Metadata    Metadata   `json:"metadata"`    // managed fields, keyed by the name after the prefix
	Org         Metadata   `json:"org"`         // organizational bookkeeping fields (doi, to_publish, ...)
	Extra       Metadata   `json:"extra"`       // unprefixed columns, kept verbatim
	Datafiles   *Datafiles `json:"-"`
}

// Datafile is one row of the datafiles table, attached to its dataset.
type Datafile struct {
	Id         string   `json:"id"`
	DatasetId  string   `json:"datasetId"`
	Filename   string   `json:"filename"`
	Categories []string `json:"categories,omitempty"`
	Metadata   Metadata `json:"metadata"`
	Org        Metadata `json:"org"`
}

type Datasets = Collection[*Dataset]

type Datafiles = Collection[*Datafile]

func NewDatasets() *Datasets {
	return NewCollection[*Dataset]()
}

func NewDataset(id, dataverseId string) *Dataset {
	return &Dataset{
		Id:          id,
		DataverseId: dataverseId,
		Metadata:    Metadata{},
		Org:         Metadata{},
		Extra:       Metadata{},
	}
}

func (d *Dataset) AddDatafile(df *Datafile) {
	if d.Datafiles == nil {
		d.Datafiles = NewCollection[*Datafile]()
	}
	d.Datafiles.Put(df.Id, df)
}

func (d *Dataset) HasDatafiles() bool {
	return d.Datafiles.Len() > 0
}

// Doi returns the persistent identifier recorded in the source table, if any.
func (d *Dataset) Doi() string {
	doi, _ := d.Org.String("doi")
	return doi
}
