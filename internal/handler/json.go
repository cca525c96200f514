package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/webstore/internal/domain/analytics"
	"github.com/xenking/webstore/internal/domain/discount"
	"github.com/xenking/webstore/internal/domain/order"
	"github.com/xenking/webstore/internal/domain/product"
)

const maxBodySize = 1 << 20

// Response encoding. Field names follow the camelCase contract of the public
// API; money is written as a JSON number with the stored scale.

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.String()))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	encodeDecimal(e, p.Price)
	e.FieldStart("stockQuantity")
	e.Int(p.StockQuantity)
	e.FieldStart("categoryId")
	e.Int64(p.CategoryID)
	if p.CategoryName != "" {
		e.FieldStart("categoryName")
		e.Str(p.CategoryName)
	}
	e.ObjEnd()
}

func encodeProducts(e *jx.Encoder, products []product.Product) {
	e.ArrStart()
	for i := range products {
		encodeProduct(e, &products[i])
	}
	e.ArrEnd()
}

// encodeOrder writes an order. Items are omitted when withItems is false,
// matching the customer order listing.
func encodeOrder(e *jx.Encoder, o *order.Order, withItems bool) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("orderDate")
	encodeTime(e, o.OrderDate)
	e.FieldStart("customerId")
	e.Int64(o.CustomerID)
	if o.CustomerName != "" {
		e.FieldStart("customerName")
		e.Str(o.CustomerName)
	}
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("subtotalAmount")
	encodeDecimal(e, o.Subtotal)
	e.FieldStart("discountPercentage")
	encodeDecimal(e, o.DiscountPercent)
	e.FieldStart("discountAmount")
	encodeDecimal(e, o.DiscountAmount)
	e.FieldStart("totalAmount")
	encodeDecimal(e, o.Total())

	if withItems {
		e.FieldStart("orderItems")
		e.ArrStart()
		for _, item := range o.Items {
			e.ObjStart()
			e.FieldStart("productId")
			e.Int64(item.ProductID)
			if item.ProductName != "" {
				e.FieldStart("productName")
				e.Str(item.ProductName)
			}
			e.FieldStart("quantity")
			e.Int(item.Quantity)
			e.FieldStart("unitPrice")
			encodeDecimal(e, item.UnitPrice)
			e.FieldStart("lineTotal")
			encodeDecimal(e, item.LineTotal())
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}

func encodeDiscountInfo(e *jx.Encoder, info discount.Info) {
	e.ObjStart()
	e.FieldStart("currentDiscountPercent")
	encodeDecimal(e, info.CurrentPercent)
	e.FieldStart("totalSpent")
	encodeDecimal(e, info.TotalSpent)
	e.FieldStart("amountToNextLevel")
	encodeDecimal(e, info.AmountToNextLevel)
	e.FieldStart("nextLevelThreshold")
	encodeDecimal(e, info.NextLevelThreshold)
	e.FieldStart("discountTier")
	e.Str(info.Tier)
	e.ObjEnd()
}

func encodePeriodFields(e *jx.Encoder, p analytics.Period) {
	e.FieldStart("startDate")
	encodeTime(e, p.Start)
	e.FieldStart("endDate")
	encodeTime(e, p.End)
}

func encodeSalesSummary(e *jx.Encoder, s *analytics.SalesSummary) {
	e.ObjStart()
	e.FieldStart("period")
	e.ObjStart()
	encodePeriodFields(e, s.Period)
	e.ObjEnd()

	e.FieldStart("totalSales")
	encodeDecimal(e, s.TotalSales)
	e.FieldStart("totalOrders")
	e.Int(s.TotalOrders)
	e.FieldStart("averageOrderValue")
	encodeDecimal(e, s.AverageOrderValue)
	e.FieldStart("completedOrders")
	e.Int(s.CompletedOrders)
	e.FieldStart("cancelledOrders")
	e.Int(s.CancelledOrders)
	e.FieldStart("conversionRate")
	encodeDecimal(e, s.ConversionRate)

	e.FieldStart("comparison")
	if c := s.Comparison; c == nil {
		e.Null()
	} else {
		e.ObjStart()
		e.FieldStart("previousPeriod")
		e.ObjStart()
		encodePeriodFields(e, c.PreviousPeriod.Period)
		e.FieldStart("totalSales")
		encodeDecimal(e, c.PreviousPeriod.TotalSales)
		e.FieldStart("totalOrders")
		e.Int(c.PreviousPeriod.TotalOrders)
		e.ObjEnd()
		e.FieldStart("salesGrowth")
		encodeDecimal(e, c.SalesGrowth)
		e.FieldStart("ordersGrowth")
		encodeDecimal(e, c.OrdersGrowth)
		e.ObjEnd()
	}

	e.FieldStart("topCategories")
	e.ArrStart()
	for _, c := range s.TopCategories {
		e.ObjStart()
		e.FieldStart("categoryId")
		e.Int64(c.CategoryID)
		e.FieldStart("categoryName")
		e.Str(c.CategoryName)
		e.FieldStart("salesAmount")
		encodeDecimal(e, c.SalesAmount)
		e.FieldStart("ordersCount")
		e.Int(c.OrdersCount)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

// Request decoding. Keys are matched case-insensitively and unknown keys are
// skipped.

// decodeBody reads the request body, capped at maxBodySize, and decodes it
// with fn. Any failure is reported as a bad request.
func decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return badRequest("read request body: %v", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return badRequest("request body is required")
	}
	if err := fn(jx.DecodeBytes(data)); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func decodeCreateOrder(d *jx.Decoder) (order.CreateRequest, error) {
	var req order.CreateRequest
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch strings.ToLower(string(key)) {
		case "customerid":
			v, err := d.Int64()
			req.CustomerID = v
			return err
		case "orderitems":
			return d.Arr(func(d *jx.Decoder) error {
				var line order.LineRequest
				err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					switch strings.ToLower(string(key)) {
					case "productid":
						v, err := d.Int64()
						line.ProductID = v
						return err
					case "quantity":
						v, err := d.Int()
						line.Quantity = v
						return err
					default:
						return d.Skip()
					}
				})
				req.Items = append(req.Items, line)
				return err
			})
		default:
			return d.Skip()
		}
	})
	return req, err
}

// decodeStatus accepts either a bare JSON string or {"status": "..."}.
func decodeStatus(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Object:
		var status string
		found := false
		err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if !strings.EqualFold(string(key), "status") {
				return d.Skip()
			}
			v, err := d.Str()
			status, found = v, true
			return err
		})
		if err != nil {
			return "", err
		}
		if !found {
			return "", errors.New(`field "status" is required`)
		}
		return status, nil
	default:
		return "", errors.New("expected a status string")
	}
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch strings.ToLower(string(key)) {
		case "name":
			v, err := d.Str()
			p.Name = strings.TrimSpace(v)
			return err
		case "description":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Str()
			p.Description = v
			return err
		case "price":
			n, err := d.Num()
			if err != nil {
				return err
			}
			price, err := decimal.NewFromString(n.String())
			if err != nil {
				return errors.Wrap(err, "price")
			}
			p.Price = price
			return nil
		case "stockquantity":
			v, err := d.Int()
			p.StockQuantity = v
			return err
		case "categoryid":
			v, err := d.Int64()
			p.CategoryID = v
			return err
		default:
			return d.Skip()
		}
	})
	return p, err
}
