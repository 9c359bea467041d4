package api

import (
	"net/http"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/veesix-networks/segmentd/pkg/version"
)

var pathParamRe = regexp.MustCompile(`\{([^}]+)\}`)

var tagDescriptions = map[string]string{
	"Allocation": "Address allocation and release",
	"General":    "General API endpoints",
	"Pool":       "Read-only pool queries",
	"Scope":      "Pod and account scoping",
	"Segment":    "Segment inventory",
}

var queryDescriptions = map[string]string{
	"type":    "Segment type: virtual or direct-attached",
	"exclude": "Segment id left out of the result",
	"zone":    "Limit results to one zone",
	"removed": "Include removed segments",
}

func buildOpenAPISpec(routes []route) *openapi3.T {
	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "segmentd API",
			Description: "Northbound REST API for VLAN/subnet segment allocation",
			Version:     version.Version,
		},
		Paths: &openapi3.Paths{},
	}

	tagSet := map[string]bool{"General": true}
	for _, rt := range routes {
		tagSet[rt.tag] = true
		addOperation(spec, rt.method, rt.pattern, routeOperation(rt))
	}

	addOperation(spec, http.MethodGet, "/api/v1/openapi.json", &openapi3.Operation{
		Tags:        []string{"General"},
		Summary:     "OpenAPI document",
		OperationID: "openapi",
		Responses: openapi3.NewResponses(
			openapi3.WithStatus(200, &openapi3.ResponseRef{
				Value: &openapi3.Response{
					Description: ptr("OpenAPI 3 document"),
					Content:     openapi3.NewContentWithJSONSchemaRef(schemaFromType(nil)),
				},
			}),
		),
	})

	tags := make([]string, 0, len(tagSet))
	for tag := range tagSet {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		desc := tagDescriptions[tag]
		if desc == "" {
			desc = tag + " endpoints"
		}
		spec.Tags = append(spec.Tags, &openapi3.Tag{Name: tag, Description: desc})
	}

	return spec
}

func routeOperation(rt route) *openapi3.Operation {
	op := &openapi3.Operation{
		Tags:        []string{rt.tag},
		Summary:     rt.summary,
		OperationID: rt.operationID,
		Parameters:  pathParameters(rt.pattern),
	}

	for _, name := range rt.query {
		op.Parameters = append(op.Parameters, &openapi3.ParameterRef{
			Value: &openapi3.Parameter{
				Name:        name,
				In:          "query",
				Description: queryDescriptions[name],
				Schema:      querySchema(name),
			},
		})
	}

	if rt.request != nil {
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(schemaFromType(rt.request)),
			},
		}
	}

	success := &openapi3.Response{Description: ptr(http.StatusText(rt.status))}
	if rt.response != nil {
		success.Content = openapi3.NewContentWithJSONSchemaRef(schemaFromType(rt.response))
	}

	errorContent := openapi3.NewContentWithJSONSchemaRef(schemaFromType(reflect.TypeOf(ErrorResponse{})))
	op.Responses = openapi3.NewResponses(
		openapi3.WithStatus(rt.status, &openapi3.ResponseRef{Value: success}),
		openapi3.WithStatus(400, &openapi3.ResponseRef{
			Value: &openapi3.Response{Description: ptr("Invalid request"), Content: errorContent},
		}),
		openapi3.WithStatus(500, &openapi3.ResponseRef{
			Value: &openapi3.Response{Description: ptr("Internal server error"), Content: errorContent},
		}),
	)
	return op
}

func addOperation(spec *openapi3.T, method, path string, op *openapi3.Operation) {
	item := spec.Paths.Value(path)
	if item == nil {
		item = &openapi3.PathItem{}
	}
	item.SetOperation(method, op)
	spec.Paths.Set(path, item)
}

func pathParameters(pattern string) openapi3.Parameters {
	var params openapi3.Parameters
	for _, m := range pathParamRe.FindAllStringSubmatch(pattern, -1) {
		name := m[1]
		schema := &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}
		if name == "address" {
			schema = &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "ipv4"}
		}
		params = append(params, &openapi3.ParameterRef{
			Value: &openapi3.Parameter{
				Name:     name,
				In:       "path",
				Required: true,
				Schema:   &openapi3.SchemaRef{Value: schema},
			},
		})
	}
	return params
}

func querySchema(name string) *openapi3.SchemaRef {
	switch name {
	case "type":
		return &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type: &openapi3.Types{"string"},
			Enum: []interface{}{"virtual", "direct-attached"},
		}}
	case "removed":
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}
	default:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}
	}
}

func schemaFromType(t reflect.Type) *openapi3.SchemaRef {
	if t == nil {
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}
	}

	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t == reflect.TypeOf(time.Time{}) {
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}}
	}

	switch t.Kind() {
	case reflect.Bool:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}}
	case reflect.Float32, reflect.Float64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}}}
	case reflect.String:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}
	case reflect.Slice:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: schemaFromType(t.Elem()),
			},
		}
	case reflect.Map:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:                 &openapi3.Types{"object"},
				AdditionalProperties: openapi3.AdditionalProperties{Schema: schemaFromType(t.Elem())},
			},
		}
	case reflect.Struct:
		return structToSchema(t)
	}

	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}
}

func structToSchema(t reflect.Type) *openapi3.SchemaRef {
	properties := openapi3.Schemas{}
	var required []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := field.Name
		omitempty := false
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					omitempty = true
				}
			}
		}

		properties[name] = schemaFromType(field.Type)
		if !omitempty && field.Type.Kind() != reflect.Ptr {
			required = append(required, name)
		}
	}

	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Properties: properties,
			Required:   required,
		},
	}
}

func ptr(s string) *string {
	return &s
}
