package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/realmsync/internal/compiler"
	"github.com/roach88/realmsync/internal/ir"
)

// LoadMode controls how errors are handled during schema loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the results of loading schemas from a directory.
type LoadResult struct {
	Schemas   ir.Schemas
	Queries   []compiler.NamedQuery
	FileCount int // Number of CUE files found
}

// LoadError represents an error that occurred during schema loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// loadConfigSchemas loads the schemas directory named by a config file.
// A directory that does not exist yields a nil result and a warning, and
// callers fall back to the built-in realm schemas.
func loadConfigSchemas(dir string, logger *slog.Logger) (*LoadResult, error) {
	if _, err := os.Stat(dir); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, WrapExitError(ExitCommandError, "failed to read schemas directory", err)
		}
		logger.Warn("schemas directory not found, using built-in realm schemas", "dir", dir)
		return nil, nil
	}
	res, errs := LoadSchemas(dir, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, WrapExitError(ExitCommandError, "failed to load schemas", errs[0])
	}
	return res, nil
}

// LoadSchemas compiles every component and query declared in the CUE files
// of dir, then validates them.
func LoadSchemas(dir string, mode LoadMode) (*LoadResult, []error) {
	var errs []error
	fail := func(err error) bool {
		errs = append(errs, err)
		return mode == LoadModeFailFast
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schemas directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schemas directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{
		Schemas:   make(ir.Schemas),
		FileCount: len(cueFiles),
	}

	componentsVal := value.LookupPath(cue.ParsePath("component"))
	if componentsVal.Exists() {
		iter, iterErr := componentsVal.Fields()
		if iterErr != nil {
			if fail(&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating components: %v", iterErr)}) {
				return result, errs
			}
		} else {
			for iter.Next() {
				schema, compileErr := compiler.CompileComponent(iter.Value())
				if compileErr != nil {
					if fail(convertCompileError(compileErr, "component."+iter.Label())) {
						return result, errs
					}
					continue
				}
				for _, ve := range compiler.ValidateComponent(*schema) {
					if fail(&LoadError{Code: ve.Code, Message: ve.Field + ": " + ve.Message, Pos: iter.Value().Pos()}) {
						return result, errs
					}
				}
				result.Schemas[schema.Name] = *schema
			}
		}
	}

	queriesVal := value.LookupPath(cue.ParsePath("query"))
	if queriesVal.Exists() {
		iter, iterErr := queriesVal.Fields()
		if iterErr != nil {
			if fail(&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating queries: %v", iterErr)}) {
				return result, errs
			}
		} else {
			for iter.Next() {
				q, compileErr := compiler.CompileQuery(iter.Value())
				if compileErr != nil {
					if fail(convertCompileError(compileErr, "query."+iter.Label())) {
						return result, errs
					}
					continue
				}
				for _, ve := range compiler.ValidateQuery(*q, result.Schemas) {
					if fail(&LoadError{Code: ve.Code, Message: ve.Field + ": " + ve.Message, Pos: iter.Value().Pos()}) {
						return result, errs
					}
				}
				result.Queries = append(result.Queries, *q)
			}
		}
	}

	if len(result.Schemas) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no components found in schemas"})
	}

	return result, errs
}

// Query returns the named query, or false.
func (r *LoadResult) Query(name string) (compiler.NamedQuery, bool) {
	for _, q := range r.Queries {
		if q.Name == name {
			return q, true
		}
	}
	return compiler.NamedQuery{}, false
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", context, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "fields", "keys":
		return ErrCodeMissingFields
	case "type":
		return ErrCodeInvalidType
	case "query":
		return ErrCodeInvalidQuery
	default:
		return ErrCodeGeneric
	}
}
