package handler

import (
	"context"
	"sort"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
	"github.com/cminh91/dong-y-sub001/internal/services/shared"
	"github.com/cminh91/dong-y-sub001/internal/utils"
)

func (s *CatalogHandler) allCategories(ctx context.Context) ([]models.Category, error) {
	var all []models.Category
	if err := s.db.WithContext(ctx).Order("sort_order asc").Order("name asc").Find(&all).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to load categories: %v", err)
	}
	return all, nil
}

// BuildTree nests categories under their parents. Orphans become roots.
func BuildTree(all []models.Category) []models.Category {
	children := map[int64][]models.Category{}
	known := map[int64]bool{}
	for _, c := range all {
		known[c.ID] = true
	}

	var roots []models.Category
	for _, c := range all {
		c.Children = nil
		if c.ParentID != nil && known[*c.ParentID] && *c.ParentID != c.ID {
			children[*c.ParentID] = append(children[*c.ParentID], c)
		} else {
			roots = append(roots, c)
		}
	}

	var attach func(nodes []models.Category, depth int) []models.Category
	attach = func(nodes []models.Category, depth int) []models.Category {
		sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].SortOrder < nodes[j].SortOrder })
		if depth > len(all) {
			return nodes
		}
		for i := range nodes {
			nodes[i].Children = attach(children[nodes[i].ID], depth+1)
		}
		return nodes
	}
	return attach(roots, 0)
}

func (s *CatalogHandler) GetCategoryTree(ctx context.Context, includeInactive bool) ([]models.Category, error) {
	cacheKey := CATEGORY_TREE_CACHE_KEY
	if includeInactive {
		cacheKey += ":all"
	}

	var cached []models.Category
	if shared.GetJSON(ctx, s.redis, s.log, cacheKey, &cached) {
		return cached, nil
	}

	all, err := s.allCategories(ctx)
	if err != nil {
		return nil, err
	}
	if !includeInactive {
		active := all[:0]
		for _, c := range all {
			if c.IsActive {
				active = append(active, c)
			}
		}
		all = active
	}

	tree := BuildTree(all)
	shared.SetJSON(ctx, s.redis, s.log, cacheKey, tree, shared.CACHE_TTL_MEDIUM)
	return tree, nil
}

func (s *CatalogHandler) categoryWithDescendants(ctx context.Context, slug string) ([]int64, error) {
	all, err := s.allCategories(ctx)
	if err != nil {
		return nil, err
	}
	var root *models.Category
	for i := range all {
		if all[i].Slug == slug {
			root = &all[i]
			break
		}
	}
	if root == nil {
		return nil, status.Errorf(codes.NotFound, "Không tìm thấy danh mục")
	}

	ids := []int64{root.ID}
	seen := map[int64]bool{root.ID: true}
	for i := 0; i < len(ids); i++ {
		for _, c := range all {
			if c.ParentID != nil && *c.ParentID == ids[i] && !seen[c.ID] {
				seen[c.ID] = true
				ids = append(ids, c.ID)
			}
		}
	}
	return ids, nil
}

type CategoryInput struct {
	Name        *string
	Slug        *string
	Description *string
	ParentID    *int64
	SortOrder   *int
	IsActive    *bool
}

// wouldCycle reports whether making parentID the parent of id creates a loop.
func wouldCycle(all []models.Category, id, parentID int64) bool {
	parents := map[int64]*int64{}
	for _, c := range all {
		parents[c.ID] = c.ParentID
	}
	cur := &parentID
	for steps := 0; cur != nil && steps <= len(all); steps++ {
		if *cur == id {
			return true
		}
		cur = parents[*cur]
	}
	return false
}

func (s *CatalogHandler) saveCategory(ctx context.Context, c *models.Category, in CategoryInput) error {
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Slug != nil {
		c.Slug = utils.Slugify(*in.Slug)
	}
	if c.Slug == "" {
		c.Slug = utils.Slugify(c.Name)
	}
	if in.Description != nil {
		c.Description = *in.Description
	}
	if in.SortOrder != nil {
		c.SortOrder = *in.SortOrder
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}

	var v []shared.FieldViolation
	if c.Name == "" {
		v = append(v, shared.FieldViolation{Field: "name", Message: "Vui lòng nhập tên danh mục"})
	}

	all, err := s.allCategories(ctx)
	if err != nil {
		return err
	}
	for _, other := range all {
		if other.ID != c.ID && other.Slug == c.Slug {
			v = append(v, shared.FieldViolation{Field: "slug", Message: "Slug đã tồn tại"})
		}
	}
	if in.ParentID != nil {
		if *in.ParentID == 0 {
			c.ParentID = nil
		} else {
			pid := *in.ParentID
			exists := false
			for _, other := range all {
				if other.ID == pid {
					exists = true
				}
			}
			switch {
			case !exists:
				v = append(v, shared.FieldViolation{Field: "parentId", Message: "Danh mục cha không tồn tại"})
			case c.ID != 0 && wouldCycle(all, c.ID, pid):
				v = append(v, shared.FieldViolation{Field: "parentId", Message: "Danh mục không thể là cha của chính nó"})
			default:
				c.ParentID = &pid
			}
		}
	}
	if len(v) > 0 {
		return shared.FieldError(codes.InvalidArgument, "Dữ liệu danh mục không hợp lệ", v...)
	}

	c.Children = nil
	if err := s.db.WithContext(ctx).Omit("Children").Save(c).Error; err != nil {
		return status.Errorf(codes.Internal, "Failed to save category: %v", err)
	}
	s.InvalidateCatalogCaches(ctx)
	return nil
}

func (s *CatalogHandler) CreateCategory(ctx context.Context, in CategoryInput) (*models.Category, error) {
	c := models.Category{IsActive: true}
	if err := s.saveCategory(ctx, &c, in); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CatalogHandler) UpdateCategory(ctx context.Context, id int64, in CategoryInput) (*models.Category, error) {
	var c models.Category
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, shared.NotFoundOr(err, "danh mục")
	}
	if err := s.saveCategory(ctx, &c, in); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CatalogHandler) DeleteCategory(ctx context.Context, id int64) error {
	var c models.Category
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return shared.NotFoundOr(err, "danh mục")
	}

	var children, products int64
	if err := s.db.WithContext(ctx).Model(&models.Category{}).Where("parent_id = ?", id).Count(&children).Error; err != nil {
		return status.Errorf(codes.Internal, "Failed to check child categories: %v", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Product{}).Where("category_id = ?", id).Count(&products).Error; err != nil {
		return status.Errorf(codes.Internal, "Failed to check category products: %v", err)
	}
	if children > 0 || products > 0 {
		return status.Errorf(codes.FailedPrecondition, "Danh mục còn %d danh mục con và %d sản phẩm", children, products)
	}

	if err := s.db.WithContext(ctx).Delete(&c).Error; err != nil {
		return status.Errorf(codes.Internal, "Failed to delete category: %v", err)
	}
	s.InvalidateCatalogCaches(ctx)
	return nil
}
