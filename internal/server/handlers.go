package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/bcrlab/bcrview/internal/msa"
	"github.com/bcrlab/bcrview/internal/output"
	"github.com/bcrlab/bcrview/internal/phylo"
	"github.com/bcrlab/bcrview/internal/pipeline"
	"github.com/bcrlab/bcrview/internal/registry"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) project(r *http.Request) (*registry.Project, error) {
	id, err := strconv.ParseInt(r.PathValue("project_id"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: project id %q", errBadRequest, r.PathValue("project_id"))
	}
	return s.store.Get(r.Context(), id)
}

// selection resolves the project and gene pair named by the request path.
func (s *Server) selection(r *http.Request) (*registry.Project, pipeline.GenePair, error) {
	p, err := s.project(r)
	if err != nil {
		return nil, pipeline.GenePair{}, err
	}
	return p, pipeline.GenePair{
		Project: p.Name,
		HCGene:  r.PathValue("hc_gene"),
		LCGene:  r.PathValue("lc_gene"),
	}, nil
}

func species(p *registry.Project) string {
	if p.Species == "" {
		return DefaultSpecies
	}
	return p.Species
}

// chainEntry resolves the request's project, pair and chain and loads the
// cached entry, computing it if needed.
func (s *Server) chainEntry(r *http.Request) (*pipeline.Entry, pipeline.Chain, error) {
	c, err := pipeline.ParseChain(r.URL.Query().Get("chain"))
	if err != nil {
		return nil, "", err
	}
	p, pair, err := s.selection(r)
	if err != nil {
		return nil, c, err
	}
	e, err := s.orch.Entry(r.Context(), pair, species(p))
	return e, c, err
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if projects == nil {
		projects = []*registry.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.store.Purge(r.Context(), p.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.orch.ForgetProject(p.Name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGeneUsage(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.store.GeneUsage(r.Context(), p.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleLCAggregation(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	genes, err := s.store.LCGenes(r.Context(), p.ID, r.PathValue("hc_gene"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lc_genes": genes})
}

func (s *Server) handleAlignment(w http.ResponseWriter, r *http.Request) {
	p, pair, err := s.selection(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := s.orch.Alignment(r.Context(), pair, species(p))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeText(w, http.StatusOK, "application/json", data)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	_, pair, err := s.selection(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.orch.Invalidate(pair); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	_, pair, err := s.selection(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Status(pair))
}

// handleTree answers with the placeholder tree whenever the analysis cannot
// produce one. Only an unknown project or a malformed request is an error.
func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	e, c, err := s.chainEntry(r)
	if errors.Is(err, registry.ErrNotFound) || errors.Is(err, errBadRequest) || errors.Is(err, pipeline.ErrInvalidChain) {
		s.writeError(w, r, err)
		return
	}
	if err != nil {
		s.logger.Warn("tree unavailable", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeText(w, http.StatusOK, "text/plain; charset=utf-8", []byte(phylo.TreeFromEntry(e, c)))
}

func (s *Server) handleDistanceMatrix(w http.ResponseWriter, r *http.Request) {
	e, c, err := s.chainEntry(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := phylo.DistanceMatrixFromEntry(e, c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleFASTA(w http.ResponseWriter, r *http.Request) {
	e, c, err := s.chainEntry(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := pipeline.WriteFASTA(&buf, e.View(c)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_%s.fasta"`, pipeline.Sanitize(r.PathValue(geneParam(c))), c))
	writeText(w, http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
}

type logo struct {
	Chain   pipeline.Chain `json:"chain"`
	MaxBits float64        `json:"max_bits"`
	Columns []msa.Column   `json:"columns"`
}

func (s *Server) handleLogo(w http.ResponseWriter, r *http.Request) {
	e, c, err := s.chainEntry(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logo{Chain: c, MaxBits: msa.MaxBits, Columns: pipeline.Profile(e.View(c))})
}

func (s *Server) handleXLSX(w http.ResponseWriter, r *http.Request) {
	p, pair, err := s.selection(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.orch.Entry(r.Context(), pair, species(p))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := output.WriteXLSX(&buf, e); err != nil {
		s.writeError(w, r, err)
		return
	}
	name := pipeline.Sanitize(pair.HCGene + "_" + pair.LCGene)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, name))
	writeText(w, http.StatusOK, xlsxContentType, buf.Bytes())
}

func geneParam(c pipeline.Chain) string {
	if c == pipeline.Light {
		return "lc_gene"
	}
	return "hc_gene"
}
