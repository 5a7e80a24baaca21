package export

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/Sgtscottadams/ab-poller/internal/models"
)

// xmlNode is one Tag or Member element; XMLName decides which.
// Structure tags nest their members as child elements.
type xmlNode struct {
	XMLName  xml.Name
	Name     string `xml:"name,attr"`
	DataType string `xml:"dataType,attr"`
	Children []xmlNode
}

type xmlTags struct {
	Nodes []xmlNode
}

type xmlScan struct {
	XMLName xml.Name `xml:"PLCTagScan"`
	Tags    xmlTags  `xml:"Tags"`
}

// CatalogXML renders a catalog as a PLCTagScan document: structure
// tags become Tag elements with nested members, everything else a
// flat Member element, in tag-name order.
func CatalogXML(tags []models.TagDescriptor) ([]byte, error) {
	scan := xmlScan{}
	for _, tag := range sortedCatalog(tags) {
		scan.Tags.Nodes = append(scan.Tags.Nodes, catalogNode(&tag))
	}
	return marshalScan(scan)
}

func catalogNode(desc *models.TagDescriptor) xmlNode {
	if desc.DataType != models.DataTypeStruct {
		return xmlNode{
			XMLName:  xml.Name{Local: "Member"},
			Name:     desc.Name,
			DataType: typeLabel(desc),
		}
	}
	node := xmlNode{
		XMLName:  xml.Name{Local: "Tag"},
		Name:     desc.Name,
		DataType: typeLabel(desc),
	}
	for i := range desc.Members {
		node.Children = append(node.Children, catalogNode(&desc.Members[i]))
	}
	return node
}

// xmlReading is one Value element of a snapshot document. The reading
// rides as character data; quality, timestamp and any read error ride
// as attributes so a failed tag is distinguishable from an empty one.
type xmlReading struct {
	XMLName   xml.Name `xml:"Value"`
	Name      string   `xml:"name,attr"`
	DataType  string   `xml:"dataType,attr"`
	Quality   string   `xml:"quality,attr"`
	Timestamp string   `xml:"timestamp,attr"`
	Error     string   `xml:"error,attr,omitempty"`
	Reading   string   `xml:",chardata"`
}

type xmlValues struct {
	Values []xmlReading
}

type xmlSnapshotScan struct {
	XMLName xml.Name  `xml:"PLCTagScan"`
	Values  xmlValues `xml:"Values"`
}

// SnapshotXML renders a value snapshot as a PLCTagScan document with
// one Value per reading.
func SnapshotXML(values []models.TagValue) ([]byte, error) {
	scan := xmlSnapshotScan{}
	for _, v := range sortedSnapshot(values) {
		rendered := ""
		if v.Value != nil {
			rendered = fmt.Sprintf("%v", v.Value)
		}
		scan.Values.Values = append(scan.Values.Values, xmlReading{
			Name:      v.TagName,
			DataType:  string(v.DataType),
			Quality:   string(v.Quality),
			Timestamp: v.Timestamp.UTC().Format(time.RFC3339),
			Error:     v.Error,
			Reading:   rendered,
		})
	}
	return marshalScan(scan)
}

func marshalScan(scan interface{}) ([]byte, error) {
	data, err := xml.MarshalIndent(scan, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding scan document: %w", err)
	}
	out := make([]byte, 0, len(xml.Header)+len(data)+1)
	out = append(out, xml.Header...)
	out = append(out, data...)
	out = append(out, '\n')
	return out, nil
}
