package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	hl7validator "github.com/gofhir/hl7validator"
	"github.com/gofhir/hl7validator/pkg/batch"
	"github.com/gofhir/hl7validator/pkg/issue"
	"github.com/gofhir/hl7validator/pkg/store"
	"github.com/gofhir/hl7validator/pkg/validator"
)

const defaultSource = "http"

type errorResponse struct {
	Error string `json:"error"`
}

// BatchItem is one message of a batch response.
type BatchItem struct {
	Index int        `json:"index"`
	Run   *store.Run `json:"run,omitempty"`
	Error string     `json:"error,omitempty"`
}

// BatchResponse is returned by POST /v1/validate/batch.
type BatchResponse struct {
	Summary  batch.Summary `json:"summary"`
	Messages []BatchItem   `json:"messages"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": hl7validator.Version,
		"grammar": s.validator.Grammar().Name,
		"history": s.store != nil,
	})
}

func (s *Server) abort(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.log.Errorw("Request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}

func bodyStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func validateOptions(c *gin.Context) ([]validator.ValidateOption, error) {
	raw := c.Query("strict")
	if raw == "" {
		return nil, nil
	}
	strict, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid strict parameter %q", raw)
	}
	return []validator.ValidateOption{validator.ValidateWithStrictMode(strict)}, nil
}

// record converts result to a run and saves it when history is enabled.
func (s *Server) record(ctx context.Context, source string, result *issue.Result) (*store.Run, error) {
	run := store.NewRun(source, result)
	if s.store == nil {
		return run, nil
	}
	if err := s.store.Save(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Server) handleValidate(c *gin.Context) {
	opts, err := validateOptions(c)
	if err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.abort(c, bodyStatus(err), fmt.Errorf("failed to read body: %w", err))
		return
	}

	ctx := c.Request.Context()
	result, err := s.validator.Validate(ctx, body, opts...)
	if err != nil {
		s.abort(c, http.StatusInternalServerError, err)
		return
	}
	run, err := s.record(ctx, c.DefaultQuery("source", defaultSource), result)
	issue.ReleaseResult(result)
	if err != nil {
		s.abort(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleValidateBatch(c *gin.Context) {
	opts, err := validateOptions(c)
	if err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return
	}

	ctx := c.Request.Context()
	source := c.DefaultQuery("source", defaultSource)
	fn := func(ctx context.Context, data []byte) (*issue.Result, error) {
		return s.validator.Validate(ctx, data, opts...)
	}
	bv := batch.New(fn).WithSegmentSeparator(s.cfg.SegmentSeparator)
	results, summary := batch.Collect(bv.ValidateStream(ctx, c.Request.Body))

	resp := BatchResponse{Summary: summary, Messages: make([]BatchItem, 0, len(results))}
	for _, r := range results {
		if r.Index < 0 {
			s.abort(c, bodyStatus(r.Error), r.Error)
			return
		}
		item := BatchItem{Index: r.Index}
		if r.Error != nil {
			item.Error = r.Error.Error()
		} else {
			item.Run, err = s.record(ctx, source, r.Result)
			issue.ReleaseResult(r.Result)
			if err != nil {
				s.abort(c, http.StatusInternalServerError, err)
				return
			}
		}
		resp.Messages = append(resp.Messages, item)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		s.abort(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.abort(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

type listQuery struct {
	Source  string `form:"source"`
	Invalid bool   `form:"invalid"`
	Limit   int    `form:"limit" binding:"gte=0"`
}

func (s *Server) handleListRuns(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return
	}
	runs, err := s.store.List(c.Request.Context(), store.Filter{
		Source:      q.Source,
		InvalidOnly: q.Invalid,
		Limit:       q.Limit,
	})
	if err != nil {
		s.abort(c, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
