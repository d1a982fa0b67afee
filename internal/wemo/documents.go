package wemo

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const (
	deviceType      = "urn:Belkin:device:controllee:1"
	basicEventType  = "urn:Belkin:service:basicevent:1"
	metaInfoType    = "urn:Belkin:service:metainfo:1"
	controlPath     = "/upnp/control/basicevent1"
	eventPath       = "/upnp/event/basicevent1"
	metaControlPath = "/upnp/control/metainfo1"
	metaEventPath   = "/upnp/event/metainfo1"
)

type setupRoot struct {
	XMLName     xml.Name    `xml:"urn:Belkin:device-1-0 root"`
	SpecVersion specVersion `xml:"specVersion"`
	Device      setupDevice `xml:"device"`
}

type specVersion struct {
	Major int `xml:"major"`
	Minor int `xml:"minor"`
}

type setupDevice struct {
	DeviceType       string         `xml:"deviceType"`
	FriendlyName     string         `xml:"friendlyName"`
	Manufacturer     string         `xml:"manufacturer"`
	ManufacturerURL  string         `xml:"manufacturerURL"`
	ModelDescription string         `xml:"modelDescription"`
	ModelName        string         `xml:"modelName"`
	ModelNumber      string         `xml:"modelNumber"`
	UDN              string         `xml:"UDN"`
	SerialNumber     string         `xml:"serialNumber"`
	BinaryState      int            `xml:"binaryState"`
	ServiceList      []setupService `xml:"serviceList>service"`
}

type setupService struct {
	ServiceType string `xml:"serviceType"`
	ServiceID   string `xml:"serviceId"`
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`
	SCPDURL     string `xml:"SCPDURL"`
}

// Description is the part of setup.xml the search client cares about.
type Description struct {
	FriendlyName string `xml:"device>friendlyName"`
	UDN          string `xml:"device>UDN"`
	SerialNumber string `xml:"device>serialNumber"`
	ModelName    string `xml:"device>modelName"`
	BinaryState  int    `xml:"device>binaryState"`
}

func setupXML(name string, on bool) ([]byte, error) {
	root := setupRoot{
		SpecVersion: specVersion{Major: 1, Minor: 0},
		Device: setupDevice{
			DeviceType:       deviceType,
			FriendlyName:     name,
			Manufacturer:     "Belkin International Inc.",
			ManufacturerURL:  "http://www.belkin.com",
			ModelDescription: "Belkin Plugin Socket 1.0",
			ModelName:        "Socket",
			ModelNumber:      "1.0",
			UDN:              UDN(name),
			SerialNumber:     Serial(name),
			BinaryState:      binaryState(on),
			ServiceList: []setupService{
				{
					ServiceType: basicEventType,
					ServiceID:   "urn:Belkin:serviceId:basicevent1",
					ControlURL:  controlPath,
					EventSubURL: eventPath,
					SCPDURL:     "/eventservice.xml",
				},
				{
					ServiceType: metaInfoType,
					ServiceID:   "urn:Belkin:serviceId:metainfo1",
					ControlURL:  metaControlPath,
					EventSubURL: metaEventPath,
					SCPDURL:     "/metainfoservice.xml",
				},
			},
		},
	}
	return marshalDocument(root)
}

// ParseDescription decodes a setup.xml document.
func ParseDescription(r io.Reader) (*Description, error) {
	var d Description
	if err := xml.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode setup.xml: %w", err)
	}
	return &d, nil
}

type scpd struct {
	XMLName     xml.Name       `xml:"urn:Belkin:service-1-0 scpd"`
	SpecVersion specVersion    `xml:"specVersion"`
	Actions     []scpdAction   `xml:"actionList>action"`
	Variables   []scpdVariable `xml:"serviceStateTable>stateVariable"`
}

type scpdAction struct {
	Name      string         `xml:"name"`
	Arguments []scpdArgument `xml:"argumentList>argument"`
}

type scpdArgument struct {
	Name      string `xml:"name"`
	Related   string `xml:"relatedStateVariable"`
	Direction string `xml:"direction"`
}

type scpdVariable struct {
	SendEvents string `xml:"sendEvents,attr"`
	Name       string `xml:"name"`
	DataType   string `xml:"dataType"`
	Default    string `xml:"defaultValue,omitempty"`
}

func eventServiceXML() ([]byte, error) {
	doc := scpd{
		SpecVersion: specVersion{Major: 1, Minor: 0},
		Actions: []scpdAction{
			{Name: "SetBinaryState", Arguments: []scpdArgument{
				{Name: "BinaryState", Related: "BinaryState", Direction: "in"},
			}},
			{Name: "GetBinaryState", Arguments: []scpdArgument{
				{Name: "BinaryState", Related: "BinaryState", Direction: "out"},
			}},
		},
		Variables: []scpdVariable{
			{SendEvents: "yes", Name: "BinaryState", DataType: "Boolean", Default: "0"},
			{SendEvents: "yes", Name: "level", DataType: "string", Default: "0"},
		},
	}
	return marshalDocument(doc)
}

func metaInfoServiceXML() ([]byte, error) {
	doc := scpd{
		SpecVersion: specVersion{Major: 1, Minor: 0},
		Actions: []scpdAction{
			{Name: "GetMetaInfo", Arguments: []scpdArgument{
				{Name: "GetMetaInfo", Related: "MetaInfo", Direction: "in"},
			}},
		},
		Variables: []scpdVariable{
			{SendEvents: "yes", Name: "MetaInfo", DataType: "string", Default: "0"},
		},
	}
	return marshalDocument(doc)
}

func marshalDocument(v any) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// soapRequest is a SOAP envelope whose body holds one action element.
type soapRequest struct {
	Body struct {
		Action soapAction `xml:",any"`
	} `xml:"Body"`
}

type soapAction struct {
	XMLName     xml.Name
	BinaryState *string `xml:"BinaryState"`
	Brightness  *string `xml:"brightness"`
}

// binaryStateCommand is a decoded SetBinaryState or GetBinaryState call.
type binaryStateCommand struct {
	Action   string
	On       bool
	Level    uint8
	HasState bool
}

var errUnknownAction = errors.New("unsupported SOAP action")

func parseControl(body []byte) (binaryStateCommand, error) {
	var env soapRequest
	if err := xml.Unmarshal(body, &env); err != nil {
		return binaryStateCommand{}, fmt.Errorf("decode SOAP envelope: %w", err)
	}
	action := env.Body.Action
	cmd := binaryStateCommand{Action: action.XMLName.Local}

	switch cmd.Action {
	case "GetBinaryState":
		return cmd, nil
	case "SetBinaryState":
	default:
		return cmd, fmt.Errorf("%w: %q", errUnknownAction, cmd.Action)
	}

	if action.BinaryState != nil {
		n, err := strconv.Atoi(strings.TrimSpace(*action.BinaryState))
		if err != nil {
			return cmd, fmt.Errorf("invalid BinaryState %q: %w", *action.BinaryState, err)
		}
		cmd.On = n != 0
		cmd.HasState = true
	}

	if action.Brightness != nil {
		pct, err := strconv.Atoi(strings.TrimSpace(*action.Brightness))
		if err != nil {
			return cmd, fmt.Errorf("invalid brightness %q: %w", *action.Brightness, err)
		}
		cmd.Level = percentToLevel(pct)
		if !cmd.HasState {
			cmd.On = pct > 0
			cmd.HasState = true
		}
	} else if cmd.On {
		cmd.Level = 255
	}

	if !cmd.HasState {
		return cmd, errors.New("SetBinaryState without BinaryState or brightness")
	}
	return cmd, nil
}

// percentToLevel maps a 0-100 brightness onto 0-255.
func percentToLevel(pct int) uint8 {
	if pct <= 0 {
		return 0
	}
	if pct >= 100 {
		return 255
	}
	return uint8(math.Round(float64(pct) * 255 / 100))
}

func soapResponse(action string, on bool) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/"><s:Body>`)
	fmt.Fprintf(&buf, `<u:%sResponse xmlns:u="%s"><BinaryState>%d</BinaryState></u:%sResponse>`,
		action, basicEventType, binaryState(on), action)
	buf.WriteString(`</s:Body></s:Envelope>`)
	return buf.Bytes()
}

func binaryState(on bool) int {
	if on {
		return 1
	}
	return 0
}
