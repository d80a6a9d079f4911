package connector

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/deltax-data-professor/server/internal/dataset"
)

type bigQueryConnector struct {
	desc   Descriptor
	cfg    Config
	opts   []option.ClientOption
	client *bigquery.Client
}

func newBigQuery(desc Descriptor, cfg Config) *bigQueryConnector {
	return &bigQueryConnector{
		desc: desc,
		cfg:  cfg,
		opts: []option.ClientOption{option.WithCredentialsFile(deref(desc.CredentialsPath))},
	}
}

func (c *bigQueryConnector) Connect(ctx context.Context) error {
	if c.client != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.connectTimeout())
	defer cancel()

	client, err := bigquery.NewClient(ctx, deref(c.desc.ProjectID), c.opts...)
	if err != nil {
		return fmt.Errorf("failed to create bigquery client: %w", err)
	}
	if _, err := client.Dataset(c.desc.Database).Table(c.desc.Table).Metadata(ctx); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to access %s.%s: %w", c.desc.Database, c.desc.Table, err)
	}
	c.client = client
	return nil
}

func (c *bigQueryConnector) fullTableName() string {
	return fmt.Sprintf("%s.%s.%s", deref(c.desc.ProjectID), c.desc.Database, c.desc.Table)
}

func (c *bigQueryConnector) Execute(ctx context.Context) (*dataset.Dataset, error) {
	if c.client == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	query, args, err := bigQueryDialect.buildSelect(c.fullTableName(), c.desc.Where, c.cfg.MaxRows)
	if err != nil {
		return nil, err
	}

	q := c.client.Query(query)
	for i, a := range args {
		q.Parameters = append(q.Parameters, bigquery.QueryParameter{Name: fmt.Sprintf("p%d", i+1), Value: a})
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.queryTimeout())
	defer cancel()

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.desc.Table, err)
	}

	var rows [][]any
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating rows: %w", err)
		}
		vals := make([]any, len(row))
		for i, v := range row {
			vals[i] = normalizeValue(v)
		}
		rows = append(rows, vals)
	}

	header := make([]string, len(it.Schema))
	for i, f := range it.Schema {
		header[i] = f.Name
	}
	ds := dataset.New(c.desc.Table, header, rows)
	ds.Source = "BigQuery:" + c.desc.Database
	return ds, nil
}

func (c *bigQueryConnector) Close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
