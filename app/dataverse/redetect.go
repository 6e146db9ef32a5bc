// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package dataverse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/time/rate"
)

// ReadFileIds reads a JSON list of datafile ids; ids may be numbers or strings.
func ReadFileIds(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	list := []interface{}{}
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("reading file ids from %v: %w", path, err)
	}
	ids := make([]string, 0, len(list))
	for _, e := range list {
		switch v := e.(type) {
		case string:
			ids = append(ids, v)
		case json.Number:
			ids = append(ids, v.String())
		default:
			return nil, fmt.Errorf("reading file ids from %v: unexpected id %v", path, e)
		}
	}
	return ids, nil
}

type RedetectResult struct {
	Done   int
	Failed int
}

// Redetector triggers the datatype redetection of datafiles, at most rps requests per second.
type Redetector struct {
	client  *Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewRedetector(client *Client, rps float64, logger *slog.Logger) *Redetector {
	return &Redetector{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}
}

// Run redetects every id. A failed id is logged and the run continues.
func (r *Redetector) Run(ctx context.Context, ids []string) (RedetectResult, error) {
	res := RedetectResult{}
	for _, id := range ids {
		if err := r.limiter.Wait(ctx); err != nil {
			return res, err
		}
		if _, err := r.client.Redetect(ctx, id, false); err != nil {
			r.logger.Error("redetect failed", "datafile", id, "err", err)
			res.Failed++
			continue
		}
		res.Done++
	}
	return res, nil
}
