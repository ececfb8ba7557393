// Package fschema converts FHIR StructureDefinitions into FHIR Schema
// documents and validates data instances against one or more of them.
//
// # Quick start
//
//	c := convert.New()
//	fs, err := c.Convert(structureDefinitionJSON)
//
//	reg := registry.New()
//	reg.Put(fs)
//
//	v := validate.New(reg)
//	result := v.Validate(instanceJSON, []string{fs.URL})
//	if !result.Valid {
//	    for _, issue := range result.Errors() {
//	        fmt.Println(issue)
//	    }
//	}
//	result.Release()
//
// # Architecture
//
// Nothing in this module reflects on host Go struct types: both
// StructureDefinition documents and the data instances they validate are
// decoded once into the tagged-value tree in package variant, and every
// downstream package (convert, schema, validate, slicing, constraint) walks
// that tree rather than a typed model. This keeps the converter and the
// validator agnostic to which FHIR release, or which profile, a given
// document declares.
//
//   - schema: the FHIR Schema document model (§3), its parse/serialize pair
//   - convert: the differential-to-nested-tree converter (C3)
//   - registry: URL/type-name schema resolution with a bounded LRU front (C4)
//   - schemata: applicable-schema-set computation (C5)
//   - validate: the element validator (C6) and primitive format table
//   - slicing: discriminator-based array slicing (C7)
//   - constraint: the expression-engine adapter (C8)
package fschema
