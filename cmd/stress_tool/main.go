package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	couponModel "shop_backend/internal/domain/coupon/model"
	couponRepo "shop_backend/internal/domain/coupon/repository"
	productModel "shop_backend/internal/domain/product/model"
	productRepo "shop_backend/internal/domain/product/repository"
	userModel "shop_backend/internal/domain/user/model"
	userRepo "shop_backend/internal/domain/user/repository"
	"shop_backend/internal/pkg/config"
	"shop_backend/pkg/database"
	"shop_backend/pkg/utils"
)

// buyer 压测用户及其 token 与收货地址
type buyer struct {
	token     string
	addressID string
}

var httpClient *http.Client

func init() {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxIdleConnsPerHost = 2000
	t.MaxConnsPerHost = 2000
	httpClient = &http.Client{
		Transport: t,
		Timeout:   10 * time.Second,
	}
}

// 模拟大量用户同时使用一张限量优惠券下单
// 开启 pricing.count_coupon_redemptions 时，成功数不应超过 limit
// 下单接口按 IP 限流，压测前需调大 server.checkout_rps / checkout_burst
func main() {
	baseURL := flag.String("url", "http://localhost:8080", "服务地址")
	users := flag.Int("users", 500, "并发用户数")
	limit := flag.Int("limit", 5, "优惠券可用次数")
	flag.Parse()

	config.LoadConfig()
	db, err := database.InitDatabase(config.GlobalConfig.Database, false)
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()

	productID, couponCode := seedCatalog(ctx, productRepo.NewProductRepository(db), couponRepo.NewCouponRepository(db), *limit)
	buyers := seedBuyers(ctx, userRepo.NewUserRepository(db), *users)

	fmt.Printf("开始压测：%d 个用户并发下单，优惠券 %s 限 %d 次...\n", len(buyers), couponCode, *limit)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
	)
	start := time.Now()
	for _, b := range buyers {
		wg.Add(1)
		go func(b buyer) {
			defer wg.Done()
			code := placeOrder(*baseURL, b, productID, couponCode)
			mu.Lock()
			statuses[code]++
			mu.Unlock()
		}(b)
	}
	wg.Wait()
	duration := time.Since(start)

	fmt.Println("--------------------------------------------------")
	fmt.Printf("压测结束，耗时: %v\n", duration)
	fmt.Printf("总请求数: %d\n", len(buyers))
	fmt.Printf("QPS: %.2f\n", float64(len(buyers))/duration.Seconds())
	fmt.Printf("下单成功: %d (优惠券限 %d 次)\n", statuses[http.StatusCreated], *limit)
	for code, n := range statuses {
		if code != http.StatusCreated {
			fmt.Printf("HTTP %d: %d\n", code, n)
		}
	}
	fmt.Println("--------------------------------------------------")
}

func seedCatalog(ctx context.Context, products productRepo.ProductRepository, coupons couponRepo.CouponRepository, limit int) (string, string) {
	product := &productModel.Product{
		Name:          "压测商品",
		SKU:           "STRESS-" + uuid.NewString()[:8],
		Price:         decimal.NewFromInt(1500),
		StockQuantity: 1000000,
	}
	if err := products.Create(ctx, product); err != nil {
		log.Fatalf("创建商品失败: %v", err)
	}

	now := time.Now()
	coupon := &couponModel.Coupon{
		Code:         "STRESS" + uuid.NewString()[:6],
		Description:  "压测专用券",
		DiscountType: couponModel.DiscountFlat,
		Discount:     decimal.NewFromInt(100),
		ValidFrom:    now.Add(-time.Hour),
		ValidUntil:   now.Add(24 * time.Hour),
		UsageLimit:   limit,
		Status:       couponModel.StatusActive,
		Visibility:   couponModel.VisibilityPublic,
	}
	if err := coupons.Create(ctx, coupon); err != nil {
		log.Fatalf("创建优惠券失败: %v", err)
	}
	return product.ID, coupon.Code
}

func seedBuyers(ctx context.Context, users userRepo.UserRepository, n int) []buyer {
	buyers := make([]buyer, 0, n)
	for i := 0; i < n; i++ {
		u := &userModel.User{
			Mobile:   fmt.Sprintf("9%09d", time.Now().UnixNano()%1e9+int64(i)),
			Nickname: fmt.Sprintf("stress-%d", i),
			Role:     userModel.RoleUser,
		}
		if err := users.Create(ctx, u); err != nil {
			log.Fatalf("创建用户失败: %v", err)
		}
		addr := &userModel.Address{UserID: u.ID, Name: u.Nickname, Phone: u.Mobile, Line1: "1 Test Road", City: "Pune", State: "MH", Pincode: "411001", Country: "India"}
		if err := users.CreateAddress(ctx, addr); err != nil {
			log.Fatalf("创建地址失败: %v", err)
		}
		token, _, err := utils.GenerateToken(u.ID, u.Role)
		if err != nil {
			log.Fatalf("生成 token 失败: %v", err)
		}
		buyers = append(buyers, buyer{token: token, addressID: addr.ID})
	}
	return buyers
}

func placeOrder(baseURL string, b buyer, productID, couponCode string) int {
	payload := map[string]interface{}{
		"orderItems":      []map[string]interface{}{{"product": productID, "quantity": 1}},
		"shippingAddress": b.addressID,
		"couponCode":      couponCode,
		"paymentMethod":   "cod",
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}
