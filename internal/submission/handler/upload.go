package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"

	"kycreview/internal/preview"
	"kycreview/internal/submission/intake"
	"kycreview/internal/submission/models"
	"kycreview/pkg/domain"
	dErrors "kycreview/pkg/domain-errors"
	"kycreview/pkg/platform/httputil"
)

// multipartMemory is how much of a form is held in memory before parts
// spill to temporary files.
const multipartMemory = 32 << 20

// uploadForm is a parsed submit or resolve call.
type uploadForm struct {
	values       map[string]string
	files        []intake.FileInput
	infoRequests []domain.RequestID
}

func (f *uploadForm) value(key string) string {
	return strings.TrimSpace(f.values[key])
}

// parseUpload accepts multipart/form-data with file parts, or JSON whose
// files all reference a preview session.
//
// Multipart layout: plain fields (customer_name, branch, comment,
// response_type, preview_session, info_requests) plus either a "manifest"
// field holding a JSON []FileRef, or file parts named after their document
// type.
func (h *Handler) parseUpload(w http.ResponseWriter, r *http.Request) (*uploadForm, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil && r.Header.Get("Content-Type") != "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid Content-Type")
	}
	switch mediaType {
	case "multipart/form-data":
		return h.parseMultipart(w, r)
	case "application/json", "":
		return parseJSONUpload(w, r)
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, "unsupported Content-Type "+mediaType)
	}
}

func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) (*uploadForm, error) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart form")
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	form := &uploadForm{values: make(map[string]string, len(r.MultipartForm.Value))}
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			form.values[k] = v[0]
		}
	}

	var refs []FileRef
	if raw := form.values["manifest"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &refs); err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "manifest is not valid JSON")
		}
	} else {
		refs = implicitRefs(r.MultipartForm.File)
	}

	used := make(map[string]bool, len(refs))
	form.files = make([]intake.FileInput, 0, len(refs))
	for i, ref := range refs {
		in, err := ref.toInput()
		if err != nil {
			return nil, fmt.Errorf("file %d: %w", i, err)
		}
		if ref.Part != "" {
			headers := r.MultipartForm.File[ref.Part]
			if len(headers) == 0 {
				return nil, dErrors.New(dErrors.CodeBadRequest, "no file part named "+ref.Part)
			}
			n := partIndex(used, ref.Part, len(headers))
			if n < 0 {
				return nil, dErrors.New(dErrors.CodeBadRequest, "part "+ref.Part+" is referenced more often than it was sent")
			}
			f, err := readPart(headers[n])
			if err != nil {
				return nil, err
			}
			in.File = f
		}
		form.files = append(form.files, in)
	}
	for name, headers := range r.MultipartForm.File {
		if countUsed(used, name) < len(headers) {
			return nil, dErrors.New(dErrors.CodeBadRequest, "file part "+name+" is not described by the manifest")
		}
	}

	ids, err := parseRequestIDs(strings.Split(form.values["info_requests"], ","))
	if err != nil {
		return nil, err
	}
	form.infoRequests = ids
	return form, nil
}

func parseJSONUpload(w http.ResponseWriter, r *http.Request) (*uploadForm, error) {
	var req UploadRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, httputil.MaxJSONBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	form := &uploadForm{values: map[string]string{
		"customer_name":   req.CustomerName,
		"branch":          req.Branch,
		"comment":         req.Comment,
		"response_type":   req.ResponseType,
		"preview_session": req.PreviewSession,
	}}
	for i, ref := range req.Files {
		in, err := ref.toInput()
		if err != nil {
			return nil, fmt.Errorf("file %d: %w", i, err)
		}
		form.files = append(form.files, in)
	}
	ids, err := parseRequestIDs(req.InfoRequests)
	if err != nil {
		return nil, err
	}
	form.infoRequests = ids
	return form, nil
}

func (ref FileRef) toInput() (intake.FileInput, error) {
	if ref.Part == "" && ref.Slot == "" {
		return intake.FileInput{}, dErrors.New(dErrors.CodeBadRequest, "a file needs a part or a slot")
	}
	dt, err := models.ParseDocumentType(strings.TrimSpace(ref.DocumentType))
	if err != nil {
		return intake.FileInput{}, err
	}
	in := intake.FileInput{DocumentType: dt, Slot: strings.TrimSpace(ref.Slot)}
	if raw := strings.TrimSpace(ref.TargetDocumentID); raw != "" {
		id, err := domain.ParseDocumentID(raw)
		if err != nil {
			return intake.FileInput{}, err
		}
		in.TargetDocumentID = &id
	}
	if raw := strings.TrimSpace(ref.RequestID); raw != "" {
		id, err := domain.ParseRequestID(raw)
		if err != nil {
			return intake.FileInput{}, err
		}
		in.RequestID = &id
	}
	return in, nil
}

// implicitRefs treats each file field name as the document type of its parts.
func implicitRefs(files map[string][]*multipart.FileHeader) []FileRef {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)
	var refs []FileRef
	for _, name := range names {
		for range files[name] {
			refs = append(refs, FileRef{Part: name, DocumentType: name})
		}
	}
	return refs
}

// partIndex hands out the parts of one field in order. used tracks
// "name#n" keys.
func partIndex(used map[string]bool, name string, n int) int {
	for i := range n {
		key := fmt.Sprintf("%s#%d", name, i)
		if !used[key] {
			used[key] = true
			return i
		}
	}
	return -1
}

func countUsed(used map[string]bool, name string) int {
	c := 0
	for key := range used {
		if strings.HasPrefix(key, name+"#") {
			c++
		}
	}
	return c
}

func readPart(fh *multipart.FileHeader) (*preview.File, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable file part")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable file part")
	}
	mediaType := fh.Header.Get("Content-Type")
	if mediaType == "application/octet-stream" {
		mediaType = ""
	}
	return &preview.File{Name: fh.Filename, MediaType: mediaType, Data: data}, nil
}

func parseRequestIDs(raw []string) ([]domain.RequestID, error) {
	var out []domain.RequestID
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := domain.ParseRequestID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
