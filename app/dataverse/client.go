// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package dataverse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/libis/rdm-dataverse-go-api/api"
)

// Response is the envelope of every native API response.
type Response struct {
	Status  string          `json:"status"`
	Message interface{}     `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ProtocolError is a response that is not OK or carries no data.
type ProtocolError struct {
	Op      string
	Status  string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v: unexpected response status %q", e.Op, e.Status)
	}
	return fmt.Sprintf("%v: unexpected response status %q: %v", e.Op, e.Status, e.Message)
}

func (r *Response) messageString() string {
	if r.Message == nil {
		return ""
	}
	switch v := r.Message.(type) {
	case string:
		return v
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// Check accepts the response only when the status is OK and data is present.
func (r *Response) Check(op string) error {
	if r.Status != "OK" || len(r.Data) == 0 || string(r.Data) == "null" {
		return &ProtocolError{Op: op, Status: r.Status, Message: r.messageString()}
	}
	return nil
}

type Client struct {
	server string
	token  string
}

func NewClient(server, token string) *Client {
	return &Client{server: server, token: token}
}

func (c *Client) request(path, method string, body io.Reader, header http.Header) *api.Request {
	client := api.NewClient(c.server)
	client.Token = c.token
	return client.NewRequest(path, method, body, header)
}

func (c *Client) call(ctx context.Context, op, path, method string, body io.Reader, header http.Header) (*Response, error) {
	res := &Response{}
	if err := api.Do(ctx, c.request(path, method, body, header), res); err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}
	return res, res.Check(op)
}

type CreatedDataset struct {
	Id           int64  `json:"id"`
	PersistentId string `json:"persistentId"`
}

// CreateDataset creates a dataset in the collection alias from a native dataset JSON.
func (c *Client) CreateDataset(ctx context.Context, alias string, datasetJson []byte) (CreatedDataset, error) {
	path := "/api/v1/dataverses/" + alias + "/datasets"
	res, err := c.call(ctx, "create dataset", path, "POST", bytes.NewReader(datasetJson), api.JsonContentHeader())
	if err != nil {
		return CreatedDataset{}, err
	}
	created := CreatedDataset{}
	if err := json.Unmarshal(res.Data, &created); err != nil {
		return CreatedDataset{}, fmt.Errorf("create dataset: %w", err)
	}
	return created, nil
}

type DatasetInfo struct {
	Id         int64  `json:"id"`
	Identifier string `json:"identifier"`
	Protocol   string `json:"protocol"`
	Authority  string `json:"authority"`
}

// GetDataset reads a dataset by persistent identifier, or by database id when isPid is false.
func (c *Client) GetDataset(ctx context.Context, id string, isPid bool) (DatasetInfo, error) {
	path := "/api/v1/datasets/" + id
	if isPid {
		path = "/api/v1/datasets/:persistentId/?persistentId=" + id
	}
	res, err := c.call(ctx, "get dataset", path, "GET", nil, nil)
	if err != nil {
		return DatasetInfo{}, err
	}
	info := DatasetInfo{}
	if err := json.Unmarshal(res.Data, &info); err != nil {
		return DatasetInfo{}, fmt.Errorf("get dataset: %w", err)
	}
	return info, nil
}

// UploadDatafile adds the file at filePath to the dataset pid; jsonData is sent as the jsonData form field.
func (c *Client) UploadDatafile(ctx context.Context, pid, filePath string, jsonData []byte) (*Response, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	path := "/api/v1/datasets/:persistentId/add?persistentId=" + pid
	return c.multipart(ctx, "upload datafile", path, jsonData, filepath.Base(filePath), f)
}

// UpdateDatafileMetadata replaces the metadata of the datafile with database id fileId.
func (c *Client) UpdateDatafileMetadata(ctx context.Context, fileId string, jsonData []byte) (*Response, error) {
	path := "/api/v1/files/" + fileId + "/metadata"
	return c.multipart(ctx, "update datafile metadata", path, jsonData, "", nil)
}

func (c *Client) multipart(ctx context.Context, op, path string, jsonData []byte, filename string, file io.Reader) (*Response, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(writer, jsonData, filename, file))
	}()
	defer pr.Close()

	requestHeader := http.Header{}
	requestHeader.Add("Content-Type", writer.FormDataContentType())
	return c.call(ctx, op, path, "POST", pr, requestHeader)
}

func writeForm(writer *multipart.Writer, jsonData []byte, filename string, file io.Reader) error {
	if file != nil {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, file); err != nil {
			return err
		}
	}
	if jsonData != nil {
		part, err := writer.CreateFormField("jsonData")
		if err != nil {
			return err
		}
		if _, err := part.Write(jsonData); err != nil {
			return err
		}
	}
	return writer.Close()
}

func (c *Client) PublishDataset(ctx context.Context, pid, releaseType string) (*Response, error) {
	path := "/api/v1/datasets/:persistentId/actions/:publish?persistentId=" + pid + "&type=" + releaseType
	return c.call(ctx, "publish dataset", path, "POST", nil, nil)
}

// DestroyDataset removes a dataset, published or not. It needs a superuser token.
func (c *Client) DestroyDataset(ctx context.Context, pid string) (*Response, error) {
	path := "/api/v1/datasets/:persistentId/destroy/?persistentId=" + pid
	return c.call(ctx, "destroy dataset", path, "DELETE", nil, nil)
}

// DeleteDataset deletes the draft version of a dataset.
func (c *Client) DeleteDataset(ctx context.Context, pid string) (*Response, error) {
	path := "/api/v1/datasets/:persistentId/versions/:draft?persistentId=" + pid
	return c.call(ctx, "delete dataset", path, "DELETE", nil, nil)
}

func (c *Client) EditDatasetMetadata(ctx context.Context, pid string, fieldsJson []byte, replace bool) (*Response, error) {
	path := "/api/v1/datasets/:persistentId/editMetadata/?persistentId=" + pid
	if replace {
		path = path + "&replace=true"
	}
	return c.call(ctx, "edit dataset metadata", path, "PUT", bytes.NewReader(fieldsJson), api.JsonContentHeader())
}

func (c *Client) Redetect(ctx context.Context, fileId string, dryRun bool) (*Response, error) {
	path := fmt.Sprintf("/api/v1/files/%v/redetect?dryRun=%v", fileId, dryRun)
	return c.call(ctx, "redetect datafile", path, "POST", nil, nil)
}
