package trino

import (
	"fmt"
	"net/http"
	"net/url"
)

// statementRequest builds the three request shapes of the statement
// protocol. Every build reads the TransactionContext afresh, so a request
// retried after a state change carries the updated header set.
type statementRequest struct {
	client *Client
	tc     *TransactionContext
}

// submit builds the initial POST with the SQL text as the body. When the
// statement is a parameter wrapper (EXECUTE ... USING), preparedName and
// preparedSQL register the underlying statement via the
// prepared-statement header for the duration of this request.
func (r statementRequest) submit(sql, preparedName, preparedSQL string) (*http.Request, error) {
	req, err := r.client.newRequest(http.MethodPost, statementPath, sql)
	if err != nil {
		return nil, err
	}
	r.tc.applyHeaders(req)
	if preparedName != "" {
		req.Header.Add(PreparedStatementHeader,
			fmt.Sprintf("%s=%s", preparedName, url.QueryEscape(preparedSQL)))
	}
	return req, nil
}

// page builds the follow-up GET for a next-uri: empty body, header set
// refreshed from the TransactionContext.
func (r statementRequest) page(nextURI string) (*http.Request, error) {
	req, err := r.client.newRequest(http.MethodGet, nextURI, "")
	if err != nil {
		return nil, err
	}
	r.tc.applyHeaders(req)
	return req, nil
}

// cancel builds the DELETE that terminates a running query.
func (r statementRequest) cancel(nextURI string) (*http.Request, error) {
	req, err := r.client.newRequest(http.MethodDelete, nextURI, "")
	if err != nil {
		return nil, err
	}
	r.tc.applyHeaders(req)
	return req, nil
}
