// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ir

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type typeParser struct {
	src string
	pos int
}

// ParseType parses the textual representation of a type as printed by Type.String.
func ParseType(s string) (Type, error) {
	p := &typeParser{src: strings.TrimSpace(s)}
	tp, err := p.parseType()
	if err != nil {
		return Type{}, errors.Wrapf(err, "cannot parse type %q", s)
	}
	if p.pos != len(p.src) {
		return Type{}, errors.Errorf("cannot parse type %q: unexpected %q at offset %d", s, p.src[p.pos:], p.pos)
	}
	return tp, nil
}

// ParseElementType parses the textual representation of an element type.
func ParseElementType(s string) (ElementType, error) {
	tp, err := ParseType(s)
	if err != nil {
		return nil, err
	}
	if !tp.IsScalar() {
		return nil, errors.Errorf("%s is not an element type", s)
	}
	return tp.Elem, nil
}

func (p *typeParser) consume(prefix string) bool {
	if !strings.HasPrefix(p.src[p.pos:], prefix) {
		return false
	}
	p.pos += len(prefix)
	return true
}

func (p *typeParser) expect(prefix string) error {
	if !p.consume(prefix) {
		return errors.Errorf("expected %q at offset %d", prefix, p.pos)
	}
	return nil
}

func (p *typeParser) peekDigit() bool {
	return p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9'
}

func (p *typeParser) parseInt() (int, error) {
	start := p.pos
	for p.peekDigit() {
		p.pos++
	}
	if start == p.pos {
		return 0, errors.Errorf("expected an integer at offset %d", start)
	}
	return strconv.Atoi(p.src[start:p.pos])
}

func (p *typeParser) parseToken() (ParamToken, error) {
	end := strings.IndexByte(p.src[p.pos:], '>')
	if end <= 0 {
		return "", errors.Errorf("expected a parameter token at offset %d", p.pos)
	}
	tok := ParamToken(strings.TrimSpace(p.src[p.pos : p.pos+end]))
	p.pos += end
	return tok, nil
}

func (p *typeParser) parseType() (Type, error) {
	if !p.consume("tensor<") {
		el, err := p.parseElement()
		return Scalar(el), err
	}
	dims := []int{}
	for p.peekDigit() {
		d, err := p.parseInt()
		if err != nil {
			return Type{}, err
		}
		if err := p.expect("x"); err != nil {
			return Type{}, err
		}
		dims = append(dims, d)
	}
	el, err := p.parseElement()
	if err != nil {
		return Type{}, err
	}
	if err := p.expect(">"); err != nil {
		return Type{}, err
	}
	return Tensor(el, dims...), nil
}

func (p *typeParser) parseElement() (ElementType, error) {
	switch {
	case p.consume("index"):
		return IndexType{}, nil
	case p.consume("eint<"):
		prec, err := p.parseInt()
		if err != nil {
			return nil, err
		}
		tp := EncryptedType{Precision: prec}
		if p.consume(",") {
			if tp.Params, err = p.parseToken(); err != nil {
				return nil, err
			}
		}
		return tp, p.expect(">")
	case p.consume("lwe<"):
		dim, err := p.parseInt()
		if err != nil {
			return nil, err
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		prec, err := p.parseInt()
		if err != nil {
			return nil, err
		}
		tp := CiphertextType{Dimension: dim, Precision: prec}
		if p.consume(",") {
			if tp.Params, err = p.parseToken(); err != nil {
				return nil, err
			}
		}
		return tp, p.expect(">")
	case p.consume("i"):
		width, err := p.parseInt()
		if err != nil {
			return nil, err
		}
		return PlainType{Width: width}, nil
	}
	return nil, errors.Errorf("unknown element type at offset %d", p.pos)
}
